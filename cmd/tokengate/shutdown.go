package main

import (
	"context"
	"net"
	"time"

	"github.com/vyrodovalexey/tokengate/internal/config"
	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// run starts the health monitor and serves on ln until ctx is cancelled or
// the server fails, then shuts every component down.
func (app *application) run(ctx context.Context, ln net.Listener, watcher *config.Watcher) error {
	app.monitor.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.server.Serve(ln)
	}()

	app.logger.Info("gateway started",
		observability.String("address", ln.Addr().String()),
		observability.String("version", version),
	)

	var err error
	select {
	case <-ctx.Done():
		app.logger.Info("received shutdown signal")
	case err = <-serveErr:
		if err != nil {
			app.logger.Error("server stopped unexpectedly", observability.Error(err))
		}
	}

	app.shutdown(watcher)
	return err
}

// shutdown stops every component, bounded by the configured shutdown timeout.
func (app *application) shutdown(watcher *config.Watcher) {
	timeout := app.config.Listen.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			app.logger.Warn("failed to stop config watcher", observability.Error(err))
		}
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	app.monitor.Stop()

	if err := app.limiter.Close(); err != nil {
		app.logger.Error("failed to stop rate limiter", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	app.logger.Info("gateway stopped",
		observability.Duration("took", time.Since(start)),
		observability.Int("gateway_requests", int(app.metrics.RequestCounts()["/gateway"])),
	)
	_ = app.logger.Sync()
}

// startConfigWatcher watches the configuration file and applies the log
// level on reload. It returns nil when no file is used or watching fails.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	levelPinned bool,
) *config.Watcher {
	if configPath == "" {
		return nil
	}

	logger := app.logger
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		if levelPinned {
			return
		}
		if err := logger.SetLevel(next.Logging.Level); err != nil {
			logger.Warn("failed to apply reloaded log level", observability.Error(err))
		}
	}, config.WithLogger(logger.With(observability.String("component", "config"))))
	if err != nil {
		logger.Warn("config hot reload disabled", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config hot reload disabled", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}
	return watcher
}
