package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Run the gateway until SIGINT or SIGTERM.

On a signal the server stops accepting connections, waits for in-flight
requests up to listen.shutdownTimeout and stops the health monitor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			logger, err := initLogger(cfg.Logging)
			if err != nil {
				return err
			}

			logger.Info("starting tokengate",
				observability.String("version", version),
				observability.String("commit", gitCommit),
				observability.String("config", opts.configPath),
			)

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := initApplication(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialize gateway", observability.Error(err))
				return err
			}

			ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", cfg.Listen.Addr())
			if err != nil {
				app.shutdown(nil)
				return fmt.Errorf("failed to listen on %s: %w", cfg.Listen.Addr(), err)
			}

			watcher := startConfigWatcher(ctx, app, opts.configPath, opts.logLevel != "")
			return app.run(ctx, ln, watcher)
		},
	}
}

// commandContext returns the command context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
