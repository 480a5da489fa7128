package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tokengate/internal/config"
	"github.com/vyrodovalexey/tokengate/internal/demo"
	httpserver "github.com/vyrodovalexey/tokengate/internal/gateway/server/http"
	"github.com/vyrodovalexey/tokengate/internal/observability"
)

type backendOptions struct {
	name      string
	address   string
	port      int
	unhealthy bool
}

func newBackendCmd(root *rootOptions) *cobra.Command {
	opts := &backendOptions{}

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run a demo backend service",
		Long: `Run a demo backend that answers GET / with a greeting naming the service
and GET /health with its readiness. SIGUSR1 toggles the health answer.`,
		Example: `  tokengate backend --name service1 --port 8001
  tokengate backend --name service2 --port 8002 --unhealthy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := initLogger(backendLogConfig(root))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := net.JoinHostPort(opts.address, fmt.Sprint(opts.port))
			ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			svc := demo.NewService(opts.name, observability.Zap(logger))
			svc.SetHealthy(!opts.unhealthy)

			toggle := make(chan os.Signal, 1)
			signal.Notify(toggle, syscall.SIGUSR1)
			defer signal.Stop(toggle)

			return runBackend(ctx, svc, ln, toggle, observability.Zap(logger))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "service1", "service name reported in responses")
	flags.StringVar(&opts.address, "address", "127.0.0.1", "listen address")
	flags.IntVar(&opts.port, "port", 8001, "listen port")
	flags.BoolVar(&opts.unhealthy, "unhealthy", false, "start with GET /health answering 503")

	return cmd
}

// runBackend serves svc on ln until ctx is done. Every value received on
// toggle flips the health answer.
func runBackend(ctx context.Context, svc *demo.Service, ln net.Listener, toggle <-chan os.Signal, logger *zap.Logger) error {
	server := httpserver.NewServer(nil, logger)
	svc.Register(server.Engine())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ln)
	}()

	healthy := svc.Healthy()
	for {
		select {
		case <-toggle:
			healthy = !healthy
			svc.SetHealthy(healthy)
		case err := <-serveErr:
			return err
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				return err
			}
			return <-serveErr
		}
	}
}

// backendLogConfig applies the root log flags without requiring a gateway
// configuration file.
func backendLogConfig(root *rootOptions) config.LoggingConfig {
	cfg := config.DefaultConfig().Logging
	if root.logLevel != "" {
		cfg.Level = root.logLevel
	}
	if root.logFormat != "" {
		cfg.Format = root.logFormat
	}
	return cfg
}
