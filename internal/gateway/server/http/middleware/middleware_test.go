package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/tokengate/internal/auth/jwt"
	"github.com/vyrodovalexey/tokengate/internal/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	identity string
	err      error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (string, error) {
	return s.identity, s.err
}

type countingCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCounter) Increment(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[label]++
}

func serve(e *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	e := gin.New()
	e.Use(RequestID())
	e.GET("/", func(c *gin.Context) {
		assert.Equal(t, GetRequestID(c), util.RequestIDFromContext(c.Request.Context()))
		c.String(http.StatusOK, GetRequestID(c))
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent", incoming: "", keep: false},
		{name: "propagated when present", incoming: "req-123", keep: true},
		{name: "replaced when too long", incoming: strings.Repeat("x", maxRequestIDLength+1), keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			header := http.Header{}
			if tt.incoming != "" {
				header.Set(RequestIDHeader, tt.incoming)
			}
			rec := serve(e, http.MethodGet, "/", header)

			got := rec.Header().Get(RequestIDHeader)
			require.NotEmpty(t, got)
			assert.Equal(t, got, rec.Body.String())
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		verifier   stubVerifier
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid token",
			verifier:   stubVerifier{identity: "alice"},
			wantStatus: http.StatusOK,
			wantBody:   "alice",
		},
		{
			name:       "validation error message is the detail",
			verifier:   stubVerifier{err: jwt.NewValidationError("Token has expired", jwt.ErrTokenExpired)},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"detail":"Token has expired"}`,
		},
		{
			name:       "other unauthenticated error",
			verifier:   stubVerifier{err: util.ErrUnauthenticated},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"detail":"Not authenticated"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := gin.New()
			e.GET("/", Authenticate(tt.verifier, nil), func(c *gin.Context) {
				assert.Equal(t, GetIdentity(c), util.IdentityFromContext(c.Request.Context()))
				c.String(http.StatusOK, GetIdentity(c))
			})

			rec := serve(e, http.MethodGet, "/", nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
			} else {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	e := gin.New()
	e.Use(RequestID(), Recovery(zap.New(core)))
	e.GET("/panic", func(*gin.Context) {
		panic(errors.New("boom"))
	})

	rec := serve(e, http.MethodGet, "/panic", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal Server Error"}`, rec.Body.String())
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	e := gin.New()
	e.Use(RequestID(), LoggingWithConfig(LoggingConfig{Logger: zap.New(core), SkipPaths: []string{"/metrics"}}))
	e.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	e.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	e.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ok", "/missing", "/fail", "/metrics"} {
		serve(e, http.MethodGet, path, nil)
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/ok", entries[0].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestCountRequests(t *testing.T) {
	t.Parallel()

	counter := &countingCounter{}
	e := gin.New()
	e.Use(CountRequests(counter))
	e.GET("/gateway", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(e, http.MethodGet, "/gateway", nil)
	serve(e, http.MethodGet, "/gateway", nil)
	serve(e, http.MethodGet, "/items/1", nil)
	serve(e, http.MethodGet, "/items/2", nil)
	serve(e, http.MethodGet, "/nowhere", nil)

	assert.Equal(t, map[string]int{
		"/gateway":   2,
		"/items/:id": 2,
		"unmatched":  1,
	}, counter.counts)
}

func TestTracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	e := gin.New()
	e.Use(RequestID(), TracingWithConfig(TracingConfig{
		TracerProvider: provider,
		ServiceName:    "test",
		SkipPaths:      []string{"/metrics"},
	}))
	e.GET("/gateway", func(c *gin.Context) {
		assert.NotNil(t, GetSpan(c))
		c.Status(http.StatusServiceUnavailable)
	})
	e.GET("/metrics", func(c *gin.Context) {
		assert.Nil(t, GetSpan(c))
		c.Status(http.StatusOK)
	})

	serve(e, http.MethodGet, "/gateway", nil)
	serve(e, http.MethodGet, "/metrics", nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /gateway", spans[0].Name())
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}
