package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/tokengate/internal/config"
	"github.com/vyrodovalexey/tokengate/internal/observability"
	"github.com/vyrodovalexey/tokengate/internal/util"
)

// Forward defaults.
const (
	DefaultForwardTimeout = 2 * time.Second
	DefaultForwardPath    = "/"

	// maxBodyBytes caps how much of a backend response is read.
	maxBodyBytes = 1 << 20
)

// routerTracer is the OTEL tracer used when none is configured.
var routerTracer = otel.Tracer("tokengate/router")

// BreakerRecorder receives circuit breaker state changes.
// States are 0=closed, 1=half-open, 2=open.
type BreakerRecorder interface {
	SetCircuitBreakerState(backend string, state int)
}

// HTTPForwarder makes the forward call to one backend.
type HTTPForwarder struct {
	client  *http.Client
	timeout time.Duration
	path    string
	tracer  trace.Tracer
	logger  observability.Logger

	breakerCfg     *config.CircuitBreakerConfig
	breakerMetrics BreakerRecorder
	breakersMu     sync.Mutex
	breakers       map[string]*gobreaker.CircuitBreaker
}

// ForwarderOption is a functional option for configuring the forwarder.
type ForwarderOption func(*HTTPForwarder)

// WithForwardTimeout sets the timeout of one forward attempt.
func WithForwardTimeout(timeout time.Duration) ForwarderOption {
	return func(f *HTTPForwarder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithForwardPath sets the path requested on the backend.
func WithForwardPath(path string) ForwarderOption {
	return func(f *HTTPForwarder) {
		if path != "" {
			f.path = path
		}
	}
}

// WithForwardClient sets the HTTP client.
func WithForwardClient(client *http.Client) ForwarderOption {
	return func(f *HTTPForwarder) {
		f.client = client
	}
}

// WithForwarderLogger sets the logger.
func WithForwarderLogger(logger observability.Logger) ForwarderOption {
	return func(f *HTTPForwarder) {
		f.logger = logger
	}
}

// WithTracer sets the tracer used for attempt spans.
func WithTracer(tracer trace.Tracer) ForwarderOption {
	return func(f *HTTPForwarder) {
		if tracer != nil {
			f.tracer = tracer
		}
	}
}

// WithCircuitBreaker wraps every backend in its own circuit breaker.
// It does nothing unless cfg.Enabled is set.
func WithCircuitBreaker(cfg config.CircuitBreakerConfig, metrics BreakerRecorder) ForwarderOption {
	return func(f *HTTPForwarder) {
		if !cfg.Enabled {
			return
		}
		f.breakerCfg = &cfg
		f.breakerMetrics = metrics
	}
}

// NewHTTPForwarder creates a forwarder.
func NewHTTPForwarder(opts ...ForwarderOption) *HTTPForwarder {
	f := &HTTPForwarder{
		client:   &http.Client{},
		timeout:  DefaultForwardTimeout,
		path:     DefaultForwardPath,
		tracer:   routerTracer,
		logger:   observability.NopLogger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Forward sends GET <addr><path> and returns the response body when it is
// JSON, whatever the status code.
func (f *HTTPForwarder) Forward(ctx context.Context, addr string) (json.RawMessage, error) {
	ctx, span := f.tracer.Start(ctx, "router.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend.address", addr),
			attribute.String("http.request.method", http.MethodGet),
		),
	)
	defer span.End()

	var (
		body json.RawMessage
		err  error
	)
	if breaker := f.breaker(addr); breaker != nil {
		var v interface{}
		v, err = breaker.Execute(func() (interface{}, error) {
			return f.do(ctx, addr)
		})
		if err == nil {
			body = v.(json.RawMessage)
		}
	} else {
		body, err = f.do(ctx, addr)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureReason(err))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return body, nil
}

func (f *HTTPForwarder) do(ctx context.Context, addr string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+f.path, http.NoBody)
	if err != nil {
		return nil, util.NewBackendError(addr, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if requestID := util.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	observability.InjectTraceContext(ctx, req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, util.NewBackendError(addr, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, util.NewBackendError(addr, "failed to read response", err)
	}

	// Any JSON answer is relayed, error statuses included.
	if json.Valid(data) {
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			f.logger.WithContext(ctx).Debug("relaying backend error body",
				observability.String("backend", addr),
				observability.Int("status", resp.StatusCode),
			)
		}
		return json.RawMessage(data), nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, util.NewBackendError(addr, "unexpected status", &util.StatusError{StatusCode: resp.StatusCode})
	}
	return nil, util.NewBackendError(addr, "invalid response", errInvalidBody)
}

// breaker returns the circuit breaker for addr, or nil when disabled.
func (f *HTTPForwarder) breaker(addr string) *gobreaker.CircuitBreaker {
	if f.breakerCfg == nil {
		return nil
	}

	f.breakersMu.Lock()
	defer f.breakersMu.Unlock()

	if cb, ok := f.breakers[addr]; ok {
		return cb
	}

	cfg := f.breakerCfg
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        addr,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// The caller hanging up says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			f.logger.Info("circuit breaker state change",
				observability.String("backend", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			if f.breakerMetrics != nil {
				f.breakerMetrics.SetCircuitBreakerState(name, int(to))
			}
		},
	})
	f.breakers[addr] = cb

	return cb
}

// BreakerState returns the breaker state name for addr.
func (f *HTTPForwarder) BreakerState(addr string) string {
	cb := f.breaker(addr)
	if cb == nil {
		return "disabled"
	}
	return cb.State().String()
}
