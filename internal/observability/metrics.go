package observability

import (
	"bytes"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Circuit breaker states as exported by the circuit_breaker_state gauge.
const (
	CircuitClosed   = 0
	CircuitHalfOpen = 1
	CircuitOpen     = 2
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	rateLimitDecisions *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
	attemptFailures    *prometheus.CounterVec
	healthProbes       *prometheus.CounterVec
	backendHealth      *prometheus.GaugeVec
	healthyBackends    prometheus.Gauge
	trackedIdentities  prometheus.Gauge
	circuitBreaker     *prometheus.GaugeVec
	buildInfo          *prometheus.GaugeVec
	startTime          prometheus.Gauge
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of requests by route (request path or backend address)",
		},
		[]string{"route"},
	)

	m.rateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Admission decisions of the per-identity rate limiter",
		},
		[]string{"result"},
	)

	m.authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credentials by reason",
		},
		[]string{"reason"},
	)

	m.attemptFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempt_failures_total",
			Help:      "Failed forward attempts by backend and reason",
		},
		[]string{"backend", "reason"},
	)

	m.healthProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Health probes by backend and outcome",
		},
		[]string{"backend", "result"},
	)

	m.backendHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_health",
			Help: "Backend health status " +
				"(1=healthy, 0=unhealthy)",
		},
		[]string{"backend"},
	)

	m.healthyBackends = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "healthy_backends",
			Help:      "Size of the current healthy set",
		},
	)

	m.trackedIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_tracked_identities",
			Help:      "Number of identities holding a token bucket",
		},
	)

	m.circuitBreaker = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help: "Circuit breaker state " +
				"(0=closed, 1=half-open, 2=open)",
		},
		[]string{"backend"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the gateway",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help: "Start time of the gateway " +
				"in unix seconds",
		},
	)

	m.registerCollectors()

	m.startTime.SetToCurrentTime()

	return m
}

// registerCollectors registers all metric collectors with the
// Prometheus registry.
func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.requestsTotal,
		m.rateLimitDecisions,
		m.authFailures,
		m.attemptFailures,
		m.healthProbes,
		m.backendHealth,
		m.healthyBackends,
		m.trackedIdentities,
		m.circuitBreaker,
		m.buildInfo,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
}

// Increment bumps the request counter for label. The middleware passes the
// request path; the router passes the backend address that served a call.
func (m *Metrics) Increment(label string) {
	m.requestsTotal.WithLabelValues(label).Inc()
}

// RecordRateLimitDecision counts one admission decision.
func (m *Metrics) RecordRateLimitDecision(allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.rateLimitDecisions.WithLabelValues(result).Inc()
}

// SetTrackedIdentities reports the number of live token buckets.
func (m *Metrics) SetTrackedIdentities(n int) {
	m.trackedIdentities.Set(float64(n))
}

// RecordAuthFailure counts a rejected credential.
func (m *Metrics) RecordAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordAttemptFailure counts a failed forward attempt.
func (m *Metrics) RecordAttemptFailure(backend, reason string) {
	m.attemptFailures.WithLabelValues(backend, reason).Inc()
}

// RecordHealthProbe counts one probe and updates the backend health gauge.
func (m *Metrics) RecordHealthProbe(backend string, healthy bool) {
	result := "failure"
	if healthy {
		result = "success"
	}
	m.healthProbes.WithLabelValues(backend, result).Inc()
	m.SetBackendHealth(backend, healthy)
}

// SetBackendHealth sets the backend health status.
func (m *Metrics) SetBackendHealth(backend string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.backendHealth.WithLabelValues(backend).Set(value)
}

// SetHealthyBackends reports the size of the healthy set.
func (m *Metrics) SetHealthyBackends(n int) {
	m.healthyBackends.Set(float64(n))
}

// SetCircuitBreakerState sets the circuit breaker state of a backend.
func (m *Metrics) SetCircuitBreakerState(backend string, state int) {
	m.circuitBreaker.WithLabelValues(backend).Set(float64(state))
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Snapshot renders every registered metric family in the Prometheus text
// exposition format. Families that fail to gather are skipped.
func (m *Metrics) Snapshot() string {
	families, _ := m.registry.Gather()

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			continue
		}
	}
	return buf.String()
}

// RequestCounts returns the requests_total value of every route label seen
// so far.
func (m *Metrics) RequestCounts() map[string]float64 {
	ch := make(chan prometheus.Metric)
	go func() {
		m.requestsTotal.Collect(ch)
		close(ch)
	}()

	counts := make(map[string]float64)
	for metric := range ch {
		var pb dto.Metric
		if err := metric.Write(&pb); err != nil {
			continue
		}
		for _, label := range pb.GetLabel() {
			if label.GetName() == "route" {
				counts[label.GetValue()] = pb.GetCounter().GetValue()
			}
		}
	}
	return counts
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
