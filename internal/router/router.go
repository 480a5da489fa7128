package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vyrodovalexey/tokengate/internal/observability"
	"github.com/vyrodovalexey/tokengate/internal/ratelimit"
	"github.com/vyrodovalexey/tokengate/internal/util"
)

// Limiter admits or rejects a request for an identity.
type Limiter interface {
	Allow(ctx context.Context, key string) (*ratelimit.Result, error)
}

// Backends is the read side of the backend registry. NextPass advances the
// rotation once and returns the healthy set starting at the new position.
type Backends interface {
	NextPass() []string
}

// Forwarder performs one forward attempt against a backend.
type Forwarder interface {
	Forward(ctx context.Context, addr string) (json.RawMessage, error)
}

// Metrics records successful routes and failed attempts.
type Metrics interface {
	Increment(label string)
	RecordAttemptFailure(backend, reason string)
}

// Response is the outcome of a successful route.
type Response struct {
	// Backend is the address that served the request.
	Backend string
	// Body is the backend's JSON response.
	Body json.RawMessage
	// RateLimit is the admission decision for this request.
	RateLimit *ratelimit.Result
}

// Router runs admission and backend selection for one identity at a time.
// It is safe for concurrent use.
type Router struct {
	limiter   Limiter
	backends  Backends
	forwarder Forwarder
	metrics   Metrics
	logger    observability.Logger
}

// Option is a functional option for configuring the router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(r *Router) {
		r.metrics = metrics
	}
}

// New creates a router.
func New(limiter Limiter, backends Backends, forwarder Forwarder, opts ...Option) *Router {
	r := &Router{
		limiter:   limiter,
		backends:  backends,
		forwarder: forwarder,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Route admits identity and forwards to the first healthy backend that
// answers. It returns a *RateLimitedError when the identity is over its
// limit and util.ErrNoBackendsAvailable when no backend answered.
func (r *Router) Route(ctx context.Context, identity string) (*Response, error) {
	decision, err := r.limiter.Allow(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !decision.Allowed {
		return nil, &RateLimitedError{
			Identity:   identity,
			Limit:      decision.Limit,
			RetryAfter: decision.RetryAfter,
		}
	}

	logger := r.logger.WithContext(ctx)

	pass := r.backends.NextPass()
	k := len(pass)
	if k == 0 {
		logger.Warn("no healthy backends", observability.String("identity", identity))
		return nil, util.ErrNoBackendsAvailable
	}

	for i, addr := range pass {
		attempt := i + 1
		body, err := r.forwarder.Forward(ctx, addr)
		if err == nil {
			if r.metrics != nil {
				r.metrics.Increment(addr)
			}
			logger.Debug("request routed",
				observability.String("identity", identity),
				observability.String("backend", addr),
				observability.Int("attempt", attempt),
			)
			return &Response{Backend: addr, Body: body, RateLimit: decision}, nil
		}

		reason := FailureReason(err)
		logger.Warn("backend attempt failed",
			observability.String("backend", addr),
			observability.String("reason", reason),
			observability.Int("attempt", attempt),
			observability.Int("max_attempts", k),
			observability.Error(err),
		)
		if r.metrics != nil {
			r.metrics.RecordAttemptFailure(addr, reason)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	logger.Error("all backends failed", observability.Int("attempts", k))
	return nil, util.ErrNoBackendsAvailable
}
