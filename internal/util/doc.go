// Package util provides shared error types and request-context helpers for
// the gateway.
//
// # Error Taxonomy
//
// Every failure surfaced to a client maps onto one of three sentinels:
//
//   - ErrUnauthenticated: missing, malformed, badly signed or expired credential (401)
//   - ErrRateLimited: the identity has no tokens left (429)
//   - ErrNoBackendsAvailable: empty healthy set or every attempt failed (503)
//
// HTTPStatus maps any error wrapping one of them to its status code:
//
//	status := util.HTTPStatus(err)
//
// # Context Helpers
//
// Context utilities for request-scoped data:
//
//	ctx = util.ContextWithRequestID(ctx, "req-123")
//	requestID := util.RequestIDFromContext(ctx)
package util
