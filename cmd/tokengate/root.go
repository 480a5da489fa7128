package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/tokengate/internal/config"
	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tokengate",
		Short: "Authenticating, rate-limiting API gateway",
		Long: `tokengate verifies bearer tokens, applies a per-identity token bucket and
forwards admitted requests round-robin to healthy backends.

Use the subcommands to run the gateway or the local development helpers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv(config.EnvConfigPath),
		"path to the YAML configuration file (env "+config.EnvConfigPath+")")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "override the configured log format (json, console)")

	cmd.AddCommand(
		newServeCmd(opts),
		newBackendCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// loadConfig loads, overrides and validates the configuration.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the process logger and installs it globally.
func initLogger(cfg config.LoggingConfig) (observability.Logger, error) {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	observability.SetGlobalLogger(logger)
	return logger, nil
}
