// Package ratelimit provides per-identity admission control for the gateway.
// Each identity owns a token bucket that starts full, refills continuously
// and is evicted once it has been idle long enough to be full again.
package ratelimit

import "time"

// Limit represents rate limit configuration.
type Limit struct {
	// Requests is the bucket capacity, also the refill amount per window.
	Requests int

	// Window is the time an empty bucket takes to refill completely.
	Window time.Duration
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the bucket capacity.
	Limit int

	// Remaining is the number of whole tokens left after this check.
	Remaining int

	// ResetAfter is the duration until the bucket is full again.
	ResetAfter time.Duration

	// RetryAfter is the duration until the next token (when not allowed).
	RetryAfter time.Duration
}

// DecisionRecorder receives admission outcomes and the bucket count.
type DecisionRecorder interface {
	RecordRateLimitDecision(allowed bool)
	SetTrackedIdentities(n int)
}
