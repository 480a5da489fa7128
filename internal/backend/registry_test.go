package backend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/tokengate/internal/util"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		addresses []string
		want      []string
		wantErr   bool
	}{
		{
			name:      "keeps configured order",
			addresses: []string{"http://b:8002", "http://a:8001"},
			want:      []string{"http://b:8002", "http://a:8001"},
		},
		{
			name:      "normalizes and drops duplicates",
			addresses: []string{" http://a:8001/ ", "http://a:8001", "http://b:8002"},
			want:      []string{"http://a:8001", "http://b:8002"},
		},
		{name: "empty list", addresses: nil, wantErr: true},
		{name: "blank address", addresses: []string{"http://a:8001", "  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewRegistry(tt.addresses, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, util.ErrConfigInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Addresses())
			assert.Equal(t, len(tt.want), r.HealthyCount())
		})
	}
}

func TestRegistry_RotationAlternates(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]string{"http://a", "http://b"}, nil)
	require.NoError(t, err)

	got := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		pass := r.NextPass()
		require.Len(t, pass, 2)
		got = append(got, pass[0])
	}

	assert.Equal(t, []string{"http://a", "http://b", "http://a", "http://b", "http://a"}, got)
}

func TestRegistry_NextPassVisitsEveryHealthyBackendOnce(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]string{"http://a", "http://b", "http://c"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a", "http://b", "http://c"}, r.NextPass())
	assert.Equal(t, []string{"http://b", "http://c", "http://a"}, r.NextPass())

	pass := r.NextPass()
	assert.Equal(t, []string{"http://c", "http://a", "http://b"}, pass)

	// Passes taken by other callers in between do not change one already
	// handed out.
	_ = r.NextPass()
	_ = r.NextPass()
	assert.Equal(t, []string{"http://c", "http://a", "http://b"}, pass)

	pass[0] = "mutated"
	assert.Equal(t, []string{"http://c", "http://a", "http://b"}, r.NextPass())
}

func TestRegistry_SetHealthy(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]string{"http://a", "http://b", "http://c"}, nil)
	require.NoError(t, err)

	_ = r.NextPass()
	_ = r.NextPass()

	// Order follows configuration, not the argument; the cursor restarts.
	r.SetHealthy([]string{"http://c", "http://a", "http://unknown"})
	assert.Equal(t, 2, r.HealthyCount())
	assert.True(t, r.IsHealthy("http://a"))
	assert.False(t, r.IsHealthy("http://b"))
	assert.True(t, r.IsHealthy("http://c/"))

	assert.Equal(t, []string{"http://a", "http://c"}, r.NextPass())
	assert.Equal(t, []string{"http://c", "http://a"}, r.NextPass())

	assert.Equal(t, []Status{
		{Address: "http://a", Healthy: true},
		{Address: "http://b", Healthy: false},
		{Address: "http://c", Healthy: true},
	}, r.Backends())
}

func TestRegistry_EmptyHealthySet(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]string{"http://a"}, nil)
	require.NoError(t, err)

	r.SetHealthy(nil)

	assert.Nil(t, r.NextPass())
	assert.Zero(t, r.HealthyCount())
}

func TestRegistry_EvenSpreadUnderConcurrency(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]string{"http://a", "http://b", "http://c"}, nil)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		counts = map[string]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				pass := r.NextPass()
				if len(pass) != 3 {
					continue
				}
				mu.Lock()
				counts[pass[0]]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"http://a": 1000, "http://b": 1000, "http://c": 1000}, counts)
}
