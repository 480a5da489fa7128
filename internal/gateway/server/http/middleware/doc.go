// Package middleware provides the gin middleware chain of the gateway's
// HTTP server: request IDs, access logging, panic recovery, per-path
// request counting, tracing and bearer authentication.
package middleware
