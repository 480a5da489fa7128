package backend

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/vyrodovalexey/tokengate/internal/observability"
	"github.com/vyrodovalexey/tokengate/internal/util"
)

// Status is the health of one configured backend.
type Status struct {
	Address string `json:"address"`
	Healthy bool   `json:"healthy"`
}

// rotation is an immutable ordering of healthy addresses with its own cursor.
type rotation struct {
	addrs  []string
	cursor atomic.Uint64
}

// Registry holds the configured backends and the rotation over the healthy ones.
type Registry struct {
	backends []string
	known    map[string]struct{}
	current  atomic.Pointer[rotation]
	logger   observability.Logger
}

// NewRegistry creates a registry for the given addresses. Every backend is
// considered healthy until the first health update.
func NewRegistry(addresses []string, logger observability.Logger) (*Registry, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := &Registry{
		backends: make([]string, 0, len(addresses)),
		known:    make(map[string]struct{}, len(addresses)),
		logger:   logger,
	}

	for i, addr := range addresses {
		addr = NormalizeAddress(addr)
		if addr == "" {
			return nil, util.NewConfigError(fmt.Sprintf("backends[%d]", i), "address is empty")
		}
		if _, dup := r.known[addr]; dup {
			logger.Warn("ignoring duplicate backend", observability.String("backend", addr))
			continue
		}
		r.known[addr] = struct{}{}
		r.backends = append(r.backends, addr)
	}
	if len(r.backends) == 0 {
		return nil, util.NewConfigError("backends", "at least one backend is required")
	}

	r.current.Store(&rotation{addrs: r.backends})
	return r, nil
}

// NormalizeAddress trims whitespace and trailing slashes from a backend address.
func NormalizeAddress(addr string) string {
	return strings.TrimRight(strings.TrimSpace(addr), "/")
}

// NextPass advances the rotation by one and returns every healthy address,
// starting at the new position. The caller owns the returned slice. Each
// pass advances the shared cursor exactly once, so concurrent callers still
// spread their first attempts round-robin while each one gets k distinct
// addresses to fail over through. It returns nil when no backend is healthy.
func (r *Registry) NextPass() []string {
	rot := r.current.Load()
	k := uint64(len(rot.addrs))
	if k == 0 {
		return nil
	}
	start := (rot.cursor.Add(1) - 1) % k

	pass := make([]string, 0, k)
	pass = append(pass, rot.addrs[start:]...)
	return append(pass, rot.addrs[:start]...)
}

// SetHealthy replaces the healthy set. The new rotation keeps the configured
// order and starts from the first entry. Unknown addresses are ignored.
func (r *Registry) SetHealthy(addresses []string) {
	healthy := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		addr = NormalizeAddress(addr)
		if _, ok := r.known[addr]; !ok {
			r.logger.Debug("ignoring unknown backend in health update", observability.String("backend", addr))
			continue
		}
		healthy[addr] = struct{}{}
	}

	ordered := make([]string, 0, len(healthy))
	for _, addr := range r.backends {
		if _, ok := healthy[addr]; ok {
			ordered = append(ordered, addr)
		}
	}

	r.current.Store(&rotation{addrs: ordered})
}

// HealthyCount returns the size of the healthy set.
func (r *Registry) HealthyCount() int {
	return len(r.current.Load().addrs)
}

// IsHealthy reports whether addr is in the healthy set.
func (r *Registry) IsHealthy(addr string) bool {
	addr = NormalizeAddress(addr)
	for _, a := range r.current.Load().addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// Addresses returns the configured addresses in order.
func (r *Registry) Addresses() []string {
	out := make([]string, len(r.backends))
	copy(out, r.backends)
	return out
}

// Backends returns every configured backend with its current health.
func (r *Registry) Backends() []Status {
	rot := r.current.Load()
	healthy := make(map[string]struct{}, len(rot.addrs))
	for _, a := range rot.addrs {
		healthy[a] = struct{}{}
	}

	out := make([]Status, 0, len(r.backends))
	for _, addr := range r.backends {
		_, ok := healthy[addr]
		out = append(out, Status{Address: addr, Healthy: ok})
	}
	return out
}
