package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

type probeRecorder struct {
	mu      sync.Mutex
	probes  map[string]bool
	healthy atomic.Int64
}

func (p *probeRecorder) RecordHealthProbe(backend string, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probes == nil {
		p.probes = map[string]bool{}
	}
	p.probes[backend] = healthy
}

func (p *probeRecorder) SetHealthyBackends(n int) {
	p.healthy.Store(int64(n))
}

func statusServer(t *testing.T, status *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// closedAddress returns an address nothing listens on.
func closedAddress(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	return addr
}

func TestMonitor_CheckNow(t *testing.T) {
	t.Parallel()

	var okStatus, failStatus, noContentStatus atomic.Int32
	okStatus.Store(http.StatusOK)
	failStatus.Store(http.StatusServiceUnavailable)
	noContentStatus.Store(http.StatusNoContent)

	up := statusServer(t, &okStatus)
	down := statusServer(t, &failStatus)
	noContent := statusServer(t, &noContentStatus)
	refused := closedAddress(t)

	r, err := NewRegistry([]string{up.URL, down.URL, refused, noContent.URL}, nil)
	require.NoError(t, err)

	recorder := &probeRecorder{}
	m := NewMonitor(r, WithMonitorMetrics(recorder), WithTimeout(500*time.Millisecond))

	healthy := m.CheckNow(context.Background())

	assert.Equal(t, []string{up.URL, noContent.URL}, healthy)
	assert.Equal(t, 2, r.HealthyCount())
	assert.False(t, r.IsHealthy(down.URL))
	assert.False(t, r.IsHealthy(refused))
	assert.Equal(t, int64(2), recorder.healthy.Load())
	assert.Equal(t, map[string]bool{
		up.URL:        true,
		down.URL:      false,
		refused:       false,
		noContent.URL: true,
	}, recorder.probes)
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})

	r, err := NewRegistry([]string{slow.URL}, nil)
	require.NoError(t, err)
	m := NewMonitor(r, WithTimeout(50*time.Millisecond))

	start := time.Now()
	healthy := m.CheckNow(context.Background())

	assert.Empty(t, healthy)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, r.NextPass())
}

func TestMonitor_AllUnhealthyThenRecovery(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := statusServer(t, &status)

	r, err := NewRegistry([]string{srv.URL}, nil)
	require.NoError(t, err)
	m := NewMonitor(r)

	assert.Empty(t, m.CheckNow(context.Background()))
	assert.Zero(t, r.HealthyCount())

	status.Store(http.StatusOK)
	assert.Equal(t, []string{srv.URL}, m.CheckNow(context.Background()))
	assert.Equal(t, 1, r.HealthyCount())
}

func TestMonitor_LogsHealthySetChanges(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status)
	down := closedAddress(t)

	core, logs := observer.New(zapcore.InfoLevel)
	r, err := NewRegistry([]string{srv.URL, down}, nil)
	require.NoError(t, err)
	m := NewMonitor(r, WithMonitorLogger(observability.NewLoggerFromZap(zap.New(core))))

	m.CheckNow(context.Background())
	changes := logs.FilterMessage("healthy set changed").All()
	require.Len(t, changes, 1)
	assert.Equal(t, srv.URL+"=up,"+down+"=down", changes[0].ContextMap()["backends"])
	assert.Equal(t, int64(1), changes[0].ContextMap()["healthy"])

	m.CheckNow(context.Background())
	assert.Len(t, logs.FilterMessage("healthy set changed").All(), 1)

	status.Store(http.StatusServiceUnavailable)
	m.CheckNow(context.Background())
	changes = logs.FilterMessage("healthy set changed").All()
	require.Len(t, changes, 2)
	assert.Equal(t, srv.URL+"=down,"+down+"=down", changes[1].ContextMap()["backends"])
}

func TestMonitor_CancelledPassKeepsState(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]string{closedAddress(t)}, nil)
	require.NoError(t, err)
	m := NewMonitor(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, m.CheckNow(ctx))
	assert.Equal(t, 1, r.HealthyCount())
}

func TestMonitor_StartStop(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := statusServer(t, &status)

	r, err := NewRegistry([]string{srv.URL}, nil)
	require.NoError(t, err)
	m := NewMonitor(r, WithInterval(20*time.Millisecond), WithPath("/health"))

	// Stop before Start is a no-op.
	m.Stop()

	m.Start(context.Background())
	m.Start(context.Background())

	require.Eventually(t, func() bool { return r.HealthyCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	status.Store(http.StatusOK)
	require.Eventually(t, func() bool { return r.HealthyCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestMonitor_ContextCancelStopsLoop(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]string{closedAddress(t)}, nil)
	require.NoError(t, err)
	m := NewMonitor(r, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	select {
	case <-m.stoppedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after context cancellation")
	}
	m.Stop()
}
