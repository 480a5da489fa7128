package backend

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// Health check default configuration constants.
const (
	// DefaultHealthCheckInterval is the default interval between probe passes.
	DefaultHealthCheckInterval = 15 * time.Second

	// DefaultHealthCheckTimeout is the default timeout for one probe.
	DefaultHealthCheckTimeout = time.Second

	// DefaultHealthCheckPath is the path probed on every backend.
	DefaultHealthCheckPath = "/health"
)

// HealthRecorder receives probe outcomes.
type HealthRecorder interface {
	RecordHealthProbe(backend string, healthy bool)
	SetHealthyBackends(n int)
}

// Monitor probes every backend on a fixed interval and publishes the
// healthy set to a Registry.
type Monitor struct {
	registry  *Registry
	client    *http.Client
	interval  time.Duration
	timeout   time.Duration
	path      string
	logger    observability.Logger
	metrics   HealthRecorder
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
	started   bool
	mu        sync.Mutex
}

// MonitorOption is a functional option for configuring the monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the interval between probe passes.
func WithInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithTimeout sets the timeout for a single probe.
func WithTimeout(timeout time.Duration) MonitorOption {
	return func(m *Monitor) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithPath sets the probe path.
func WithPath(path string) MonitorOption {
	return func(m *Monitor) {
		if path != "" {
			m.path = path
		}
	}
}

// WithHTTPClient sets the HTTP client used for probes.
func WithHTTPClient(client *http.Client) MonitorOption {
	return func(m *Monitor) {
		m.client = client
	}
}

// WithMonitorLogger sets the logger for the monitor.
func WithMonitorLogger(logger observability.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMonitorMetrics sets the probe recorder.
func WithMonitorMetrics(metrics HealthRecorder) MonitorOption {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// NewMonitor creates a health monitor for the backends in registry.
func NewMonitor(registry *Registry, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		registry:  registry,
		client:    &http.Client{},
		interval:  DefaultHealthCheckInterval,
		timeout:   DefaultHealthCheckTimeout,
		path:      DefaultHealthCheckPath,
		logger:    observability.NopLogger(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start runs a probe pass immediately, then one every interval, until ctx
// is done or Stop is called. A monitor starts at most once.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.running = true
	m.mu.Unlock()

	m.logger.Info("starting health monitor",
		observability.Int("backends", len(m.registry.Addresses())),
		observability.Duration("interval", m.interval),
		observability.Duration("timeout", m.timeout),
	)

	go m.run(ctx)
}

// Stop stops the loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.stoppedCh
	m.logger.Info("health monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.stoppedCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow probes every backend concurrently, publishes the healthy set
// and returns it. The registry is left untouched if ctx ends mid-pass.
func (m *Monitor) CheckNow(ctx context.Context) []string {
	addrs := m.registry.Addresses()
	results := make([]bool, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		g.Go(func() error {
			results[i] = m.probe(gctx, addr)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil
	}

	healthy := make([]string, 0, len(addrs))
	changed := false
	for i, addr := range addrs {
		was := m.registry.IsHealthy(addr)
		now := results[i]
		if now {
			healthy = append(healthy, addr)
		}
		if was != now {
			changed = true
			if now {
				m.logger.Info("backend became healthy", observability.String("backend", addr))
			} else {
				m.logger.Warn("backend became unhealthy", observability.String("backend", addr))
			}
		}
		if m.metrics != nil {
			m.metrics.RecordHealthProbe(addr, now)
		}
	}

	m.registry.SetHealthy(healthy)
	if m.metrics != nil {
		m.metrics.SetHealthyBackends(len(healthy))
	}
	if changed {
		m.logger.Info("healthy set changed",
			observability.Int("healthy", len(healthy)),
			observability.String("backends", formatStatuses(m.registry.Backends())),
		)
	}

	m.logger.Debug("health check pass complete",
		observability.Int("healthy", len(healthy)),
		observability.Int("total", len(addrs)),
	)

	return healthy
}

// formatStatuses renders statuses as addr=up|down pairs in configured order.
func formatStatuses(statuses []Status) string {
	var b strings.Builder
	for i, st := range statuses {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(st.Address)
		if st.Healthy {
			b.WriteString("=up")
		} else {
			b.WriteString("=down")
		}
	}
	return b.String()
}

// probe reports whether addr answered the health path with a 2xx status
// within the timeout.
func (m *Monitor) probe(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+m.path, http.NoBody)
	if err != nil {
		m.logger.Debug("failed to build health check request",
			observability.String("backend", addr),
			observability.Error(err),
		)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("health check failed",
			observability.String("backend", addr),
			observability.Error(err),
		)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
}
