package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvConfigPath = "TOKENGATE_CONFIG_PATH"
	EnvListenPort = "TOKENGATE_LISTEN_PORT"
	EnvLogLevel   = "TOKENGATE_LOG_LEVEL"
	EnvLogFormat  = "TOKENGATE_LOG_FORMAT"
	EnvJWTSecret  = "TOKENGATE_JWT_SECRET"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// LoadConfig loads configuration from a file path. An empty path yields
// DefaultConfig with environment overrides applied.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		if err := ApplyEnvOverrides(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return parseConfig(data)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(data)
}

// parseConfig decodes YAML on top of DefaultConfig.
func parseConfig(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment variable values.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// ApplyEnvOverrides applies TOKENGATE_* environment variables to cfg.
func ApplyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvListenPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvListenPort, v, err)
		}
		cfg.Listen.Port = port
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok && v != "" {
		cfg.Logging.Format = v
	}
	if v, ok := os.LookupEnv(EnvJWTSecret); ok && v != "" {
		cfg.Auth.Secret.Source = SecretSourceLiteral
		cfg.Auth.Secret.Value = v
	}
	return nil
}
