// Package backend tracks the fixed pool of upstream services and which of
// them are currently healthy.
//
// The Registry holds the configured addresses and a rotation over the
// healthy subset. The rotation is an immutable snapshot swapped atomically
// on every health update, so readers never block writers:
//
//	registry, err := backend.NewRegistry([]string{"http://localhost:8001"}, logger)
//	for _, addr := range registry.NextPass() {
//	    // try addr, fall through to the next one on failure
//	}
//
// The Monitor probes every backend on a fixed interval and publishes the
// healthy set to the Registry:
//
//	monitor := backend.NewMonitor(registry, backend.WithInterval(15*time.Second))
//	monitor.Start(ctx)
//	defer monitor.Stop()
package backend
