package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultJitterFactor   = 0.25
	MaxJitterFactor       = 1.0
)

// Config contains retry configuration parameters. Zero fields take the
// defaults.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// JitterFactor adds up to this fraction of the backoff at random.
	JitterFactor float64
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = DefaultJitterFactor
	}
	if c.JitterFactor > MaxJitterFactor {
		c.JitterFactor = MaxJitterFactor
	}
	return c
}

// OnRetryFunc is called before each retry with the attempt number that is
// about to run, the error that caused it and the wait.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Option configures Do.
type Option func(*options)

type options struct {
	onRetry OnRetryFunc
}

// WithOnRetry registers a callback invoked before each retry.
func WithOnRetry(fn OnRetryFunc) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it returns nil, a Permanent error, or the retries are
// exhausted. The last error is returned; a done context returns ctx.Err().
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error, opts ...Option) error {
	cfg = cfg.withDefaults()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		backoff := Backoff(attempt, cfg)
		if o.onRetry != nil {
			o.onRetry(attempt+1, lastErr, backoff)
		}
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}

	return lastErr
}

// Backoff returns the wait before retry number attempt+1: InitialBackoff
// doubled per attempt, plus jitter, capped at MaxBackoff.
func Backoff(attempt int, cfg Config) time.Duration {
	cfg = cfg.withDefaults()
	backoff := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))

	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	backoff += backoff * cfg.JitterFactor * rand.Float64()

	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
