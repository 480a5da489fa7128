package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
listen:
  port: 9000
auth:
  algorithm: HS512
  secret:
    source: env
    envVar: GATEWAY_SECRET
rateLimit:
  capacity: 10
  window: 30s
backends:
  - http://svc-a:8080
  - ${BACKEND_B:-http://svc-b:8080}
health:
  interval: 5
logging:
  level: debug
`

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tokengate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(sampleYAML), 0o600))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Listen.Port)
	assert.Equal(t, "HS512", cfg.Auth.Algorithm)
	assert.Equal(t, SecretSourceEnv, cfg.Auth.Secret.Source)
	assert.Equal(t, "GATEWAY_SECRET", cfg.Auth.Secret.EnvVar)
	assert.Equal(t, 10, cfg.RateLimit.Capacity)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window.Duration())
	assert.Equal(t, []string{"http://svc-a:8080", "http://svc-b:8080"}, cfg.Backends)
	assert.Equal(t, 5*time.Second, cfg.Health.Interval.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched sections keep their defaults
	assert.Equal(t, time.Second, cfg.Health.Timeout.Duration())
	assert.Equal(t, 2*time.Second, cfg.Forward.Timeout.Duration())
}

func TestLoadConfig_EnvSubstitution(t *testing.T) {
	t.Setenv("BACKEND_B", "http://override:9999")

	cfg, err := LoadConfigFromReader(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "http://override:9999", cfg.Backends[1])
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvListenPort, "8100")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogFormat, "console")
	t.Setenv(EnvJWTSecret, "from-env")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8100, cfg.Listen.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, SecretSourceLiteral, cfg.Auth.Secret.Source)
	assert.Equal(t, "from-env", cfg.Auth.Secret.Value)
}

func TestLoadConfig_InvalidPortOverride(t *testing.T) {
	t.Setenv(EnvListenPort, "eighty")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("/nonexistent/path/tokengate.yaml")
	assert.Error(t, err)

	_, err = LoadConfigFromReader(strings.NewReader("listen: [oops"))
	assert.Error(t, err)

	_, err = LoadConfigFromReader(strings.NewReader("unknownSection: true"))
	assert.Error(t, err)
}

func TestLoadConfig_EmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Backends, cfg.Backends)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TG_TEST_VALUE", "x")

	assert.Equal(t, "a: x", substituteEnvVars("a: ${TG_TEST_VALUE}"))
	assert.Equal(t, "a: dflt", substituteEnvVars("a: ${TG_TEST_MISSING:-dflt}"))
	assert.Equal(t, "a: ", substituteEnvVars("a: ${TG_TEST_MISSING}"))
	assert.Equal(t, "a: ${TG_TEST_VALUE}", substituteEnvVars("a: $${TG_TEST_VALUE}"))
}

func TestLoadConfig_ShippedSample(t *testing.T) {
	t.Setenv("TOKENGATE_PORT", "")
	require.NoError(t, os.Unsetenv("TOKENGATE_PORT"))
	t.Setenv(EnvListenPort, "")
	t.Setenv(EnvJWTSecret, "")

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "tokengate.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8000, cfg.Listen.Port)
	assert.Equal(t, DefaultCapacity, cfg.RateLimit.Capacity)
	assert.Equal(t, DefaultWindow, cfg.RateLimit.Window.Duration())
	assert.Equal(t, []string{"http://localhost:8001", "http://localhost:8002"}, cfg.Backends)
	assert.False(t, cfg.Forward.CircuitBreaker.Enabled)
}
