package ratelimit

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// Ensure TokenBucketLimiter implements io.Closer for proper resource cleanup
var _ io.Closer = (*TokenBucketLimiter)(nil)

// Default bucket parameters.
const (
	DefaultCapacity    = 5
	DefaultWindow      = time.Minute
	DefaultIdleWindows = 5
)

// TokenBucketLimiter keeps one token bucket per key. A bucket holds at most
// capacity tokens and gains capacity tokens per window, continuously.
// Call Close() when done to stop the eviction sweep.
type TokenBucketLimiter struct {
	capacity int
	window   time.Duration
	limit    rate.Limit

	mu      sync.RWMutex
	buckets map[string]*bucket

	now           func() time.Time
	logger        observability.Logger
	metrics       DecisionRecorder
	idleTTL       time.Duration
	sweepInterval time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
}

// bucket is the state of a single key.
type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
	evicted  bool
}

// TokenBucketOption is a functional option for the token bucket limiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.logger = logger
	}
}

// WithMetrics sets the decision recorder.
func WithMetrics(metrics DecisionRecorder) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.metrics = metrics
	}
}

// WithIdleTTL sets how long an untouched bucket is kept.
func WithIdleTTL(ttl time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

// WithSweepInterval sets how often idle buckets are evicted. A negative
// interval disables the background sweep; Sweep can still be called.
func WithSweepInterval(interval time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		if interval != 0 {
			l.sweepInterval = interval
		}
	}
}

// NewTokenBucketLimiter creates a limiter that admits capacity requests per
// window for each key and starts the eviction sweep.
func NewTokenBucketLimiter(capacity int, window time.Duration, opts ...TokenBucketOption) *TokenBucketLimiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l := &TokenBucketLimiter{
		capacity:      capacity,
		window:        window,
		limit:         rate.Limit(float64(capacity) / window.Seconds()),
		buckets:       make(map[string]*bucket),
		now:           time.Now,
		logger:        observability.NopLogger(),
		idleTTL:       DefaultIdleWindows * window,
		sweepInterval: window,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.sweepInterval > 0 {
		go l.sweepLoop()
	} else {
		close(l.stoppedCh)
	}

	return l
}

// Allow consumes one token from the bucket of key if one is available.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()

	var b *bucket
	for {
		b = l.getOrCreate(key, now)
		b.mu.Lock()
		if !b.evicted {
			break
		}
		// Lost a race with Sweep; the next lookup creates a fresh bucket.
		b.mu.Unlock()
	}
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	if now.After(b.lastSeen) {
		b.lastSeen = now
	}
	b.mu.Unlock()

	if l.metrics != nil {
		l.metrics.RecordRateLimitDecision(allowed)
	}

	result := &Result{
		Allowed:    allowed,
		Limit:      l.capacity,
		Remaining:  max(int(math.Floor(tokens)), 0),
		ResetAfter: l.durationFor(float64(l.capacity) - tokens),
	}
	if !allowed {
		result.RetryAfter = l.durationFor(1 - tokens)

		l.logger.Debug("rate limit exceeded",
			observability.String("identity", key),
			observability.Duration("retry_after", result.RetryAfter),
		)
	}

	return result, nil
}

// GetLimit returns the bucket capacity and refill window.
func (l *TokenBucketLimiter) GetLimit() *Limit {
	return &Limit{
		Requests: l.capacity,
		Window:   l.window,
	}
}

// Len returns the number of tracked keys.
func (l *TokenBucketLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Sweep removes buckets untouched for longer than the idle TTL and returns
// how many were removed.
func (l *TokenBucketLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		if now.Sub(b.lastSeen) > l.idleTTL {
			b.evicted = true
			delete(l.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	remaining := len(l.buckets)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.SetTrackedIdentities(remaining)
	}
	if removed > 0 {
		l.logger.Debug("evicted idle rate limit buckets",
			observability.Int("removed", removed),
			observability.Int("remaining", remaining),
		)
	}

	return removed
}

// Close implements io.Closer. It stops the eviction sweep and waits for it
// to exit. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.stoppedCh
	return nil
}

func (l *TokenBucketLimiter) sweepLoop() {
	defer close(l.stoppedCh)

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *TokenBucketLimiter) getOrCreate(key string, now time.Time) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{
		limiter:  rate.NewLimiter(l.limit, l.capacity),
		lastSeen: now,
	}
	l.buckets[key] = b
	return b
}

// durationFor returns how long the bucket takes to gain tokens.
func (l *TokenBucketLimiter) durationFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / float64(l.limit) * float64(time.Second))
}
