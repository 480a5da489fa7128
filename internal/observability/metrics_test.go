package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		namespace string
	}{
		{name: "with custom namespace", namespace: "custom"},
		{name: "with empty namespace uses default", namespace: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics := NewMetrics(tt.namespace)

			assert.NotNil(t, metrics.requestsTotal)
			assert.NotNil(t, metrics.rateLimitDecisions)
			assert.NotNil(t, metrics.backendHealth)
			assert.NotNil(t, metrics.circuitBreaker)
			assert.NotNil(t, metrics.registry)
		})
	}
}

func TestMetrics_Increment(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("gateway")

	metrics.Increment("/gateway")
	metrics.Increment("/gateway")
	metrics.Increment("http://localhost:8001")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/gateway")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("http://localhost:8001")))
}

func TestMetrics_Increment_Concurrent(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("gateway")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				metrics.Increment("/gateway")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5000.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/gateway")))
}

func TestMetrics_Snapshot(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("gateway")
	metrics.Increment("http://localhost:8002")

	snapshot := metrics.Snapshot()

	assert.Contains(t, snapshot, "# TYPE gateway_requests_total counter")
	assert.Contains(t, snapshot, `gateway_requests_total{route="http://localhost:8002"} 1`)
	assert.Contains(t, snapshot, "gateway_start_time_seconds")
}

func TestMetrics_RequestCounts(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("gateway")
	assert.Empty(t, metrics.RequestCounts())

	metrics.Increment("/gateway")
	metrics.Increment("/gateway")
	metrics.Increment("http://localhost:8001")

	assert.Equal(t, map[string]float64{
		"/gateway":              2,
		"http://localhost:8001": 1,
	}, metrics.RequestCounts())
}

func TestMetrics_Recorders(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("gateway")

	metrics.RecordRateLimitDecision(true)
	metrics.RecordRateLimitDecision(false)
	metrics.RecordRateLimitDecision(false)
	metrics.RecordAuthFailure("expired")
	metrics.RecordAttemptFailure("http://a", "timeout")
	metrics.RecordHealthProbe("http://a", false)
	metrics.RecordHealthProbe("http://b", true)
	metrics.SetHealthyBackends(1)
	metrics.SetTrackedIdentities(3)
	metrics.SetCircuitBreakerState("http://a", CircuitOpen)
	metrics.SetBuildInfo("v1.0.0", "abc", "now")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rateLimitDecisions.WithLabelValues("allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.rateLimitDecisions.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.authFailures.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.attemptFailures.WithLabelValues("http://a", "timeout")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.backendHealth.WithLabelValues("http://a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.backendHealth.WithLabelValues("http://b")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.healthProbes.WithLabelValues("http://b", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.healthyBackends))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.trackedIdentities))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.circuitBreaker.WithLabelValues("http://a")))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("gateway")
	metrics.Increment("/health")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gateway_requests_total{route="/health"} 1`)
	assert.NotNil(t, metrics.Registry())
}
