package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/tokengate/internal/util"
)

// Secret sources for the token signing key.
const (
	SecretSourceLiteral = "literal"
	SecretSourceEnv     = "env"
	SecretSourceFile    = "file"
	SecretSourceVault   = "vault"
)

// Default values.
const (
	DefaultPort               = 8000
	DefaultSecret             = "jobs2025"
	DefaultAlgorithm          = "HS256"
	DefaultCapacity           = 5
	DefaultWindow             = 60 * time.Second
	DefaultIdleWindows        = 5
	DefaultHealthInterval     = 15 * time.Second
	DefaultHealthTimeout      = 1 * time.Second
	DefaultHealthPath         = "/health"
	DefaultForwardTimeout     = 2 * time.Second
	DefaultForwardPath        = "/"
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultVaultMount         = "secret"
	DefaultVaultKey           = "jwt_secret"
	DefaultBreakerMaxRequests = 1
	DefaultBreakerFailures    = 3
	DefaultBreakerTimeout     = 30 * time.Second
)

// Config is the complete gateway configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen" json:"listen"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	Backends  []string        `yaml:"backends" json:"backends"`
	Health    HealthConfig    `yaml:"health" json:"health"`
	Forward   ForwardConfig   `yaml:"forward" json:"forward"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
}

// ListenConfig configures the HTTP listener.
type ListenConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// Addr returns the host:port the server binds to.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	// ClockSkew is subtracted from the current time before the expiry check.
	ClockSkew Duration `yaml:"clockSkew" json:"clockSkew"`
	// PublicKeyFile holds a PEM public key for asymmetric algorithms.
	PublicKeyFile string       `yaml:"publicKeyFile" json:"publicKeyFile"`
	Secret        SecretConfig `yaml:"secret" json:"secret"`
}

// SecretConfig selects where the HMAC signing secret comes from.
type SecretConfig struct {
	Source string      `yaml:"source" json:"source"`
	Value  string      `yaml:"value" json:"-"`
	EnvVar string      `yaml:"envVar" json:"envVar"`
	File   string      `yaml:"file" json:"file"`
	Vault  VaultConfig `yaml:"vault" json:"vault"`
}

// VaultConfig locates the secret in a Vault KV v2 engine.
type VaultConfig struct {
	Address   string   `yaml:"address" json:"address"`
	Token     string   `yaml:"token" json:"-"`
	Namespace string   `yaml:"namespace" json:"namespace"`
	Mount     string   `yaml:"mount" json:"mount"`
	Path      string   `yaml:"path" json:"path"`
	Key       string   `yaml:"key" json:"key"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig configures the per-identity token bucket.
type RateLimitConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
	// Window is the time it takes an empty bucket to refill completely.
	Window Duration `yaml:"window" json:"window"`
	// IdleTTL is how long an untouched bucket survives; zero means 5 windows.
	IdleTTL Duration `yaml:"idleTTL" json:"idleTTL"`
	// SweepInterval is how often idle buckets are evicted; zero means one window.
	SweepInterval Duration `yaml:"sweepInterval" json:"sweepInterval"`
}

// EffectiveIdleTTL returns IdleTTL or its default.
func (r RateLimitConfig) EffectiveIdleTTL() time.Duration {
	if r.IdleTTL > 0 {
		return r.IdleTTL.Duration()
	}
	return DefaultIdleWindows * r.Window.Duration()
}

// EffectiveSweepInterval returns SweepInterval or its default.
func (r RateLimitConfig) EffectiveSweepInterval() time.Duration {
	if r.SweepInterval > 0 {
		return r.SweepInterval.Duration()
	}
	return r.Window.Duration()
}

// HealthConfig configures the backend health monitor.
type HealthConfig struct {
	Interval Duration `yaml:"interval" json:"interval"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
	Path     string   `yaml:"path" json:"path"`
}

// ForwardConfig configures the forward call made for each routed request.
type ForwardConfig struct {
	Timeout        Duration             `yaml:"timeout" json:"timeout"`
	Path           string               `yaml:"path" json:"path"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
}

// CircuitBreakerConfig configures the optional per-backend circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32 `yaml:"maxRequests" json:"maxRequests"`
	// Interval clears the closed-state failure counts; zero never clears.
	Interval Duration `yaml:"interval" json:"interval"`
	// Timeout is how long the breaker stays open.
	Timeout Duration `yaml:"timeout" json:"timeout"`
	// FailureThreshold is the run of consecutive failures that opens it.
	FailureThreshold uint32 `yaml:"failureThreshold" json:"failureThreshold"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Port:            DefaultPort,
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Auth: AuthConfig{
			Algorithm: DefaultAlgorithm,
			Secret: SecretConfig{
				Source: SecretSourceLiteral,
				Value:  DefaultSecret,
				Vault: VaultConfig{
					Mount:   DefaultVaultMount,
					Key:     DefaultVaultKey,
					Timeout: Duration(5 * time.Second),
				},
			},
		},
		RateLimit: RateLimitConfig{
			Capacity: DefaultCapacity,
			Window:   Duration(DefaultWindow),
		},
		Backends: []string{
			"http://localhost:8001",
			"http://localhost:8002",
		},
		Health: HealthConfig{
			Interval: Duration(DefaultHealthInterval),
			Timeout:  Duration(DefaultHealthTimeout),
			Path:     DefaultHealthPath,
		},
		Forward: ForwardConfig{
			Timeout: Duration(DefaultForwardTimeout),
			Path:    DefaultForwardPath,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      DefaultBreakerMaxRequests,
				Timeout:          Duration(DefaultBreakerTimeout),
				FailureThreshold: DefaultBreakerFailures,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			ServiceName:  "tokengate",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Insecure:     true,
		},
	}
}

// Validate checks the configuration and returns every problem found,
// joined into one error. Each problem is a *util.ConfigError.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, util.NewConfigError(field, msg))
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		add("listen.port", fmt.Sprintf("port %d out of range", c.Listen.Port))
	}

	switch strings.ToUpper(c.Auth.Algorithm) {
	case "HS256", "HS384", "HS512":
		errs = append(errs, c.Auth.Secret.validate()...)
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EDDSA":
		if c.Auth.PublicKeyFile == "" {
			add("auth.publicKeyFile", "required for algorithm "+c.Auth.Algorithm)
		}
	default:
		add("auth.algorithm", fmt.Sprintf("unsupported algorithm %q", c.Auth.Algorithm))
	}
	if c.Auth.ClockSkew < 0 {
		add("auth.clockSkew", "must not be negative")
	}

	if c.RateLimit.Capacity < 1 {
		add("rateLimit.capacity", "must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		add("rateLimit.window", "must be positive")
	}
	if c.RateLimit.IdleTTL < 0 || c.RateLimit.SweepInterval < 0 {
		add("rateLimit", "idleTTL and sweepInterval must not be negative")
	}

	if len(c.Backends) == 0 {
		add("backends", "at least one backend required")
	}
	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		field := fmt.Sprintf("backends[%d]", i)
		u, err := url.Parse(b)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(field, fmt.Sprintf("%q is not an http(s) URL", b))
			continue
		}
		if seen[b] {
			add(field, fmt.Sprintf("duplicate backend %q", b))
		}
		seen[b] = true
	}

	if c.Health.Interval <= 0 {
		add("health.interval", "must be positive")
	}
	if c.Health.Timeout <= 0 {
		add("health.timeout", "must be positive")
	}
	if c.Forward.Timeout <= 0 {
		add("forward.timeout", "must be positive")
	}
	if cb := c.Forward.CircuitBreaker; cb.Enabled && (cb.FailureThreshold == 0 || cb.Timeout <= 0) {
		add("forward.circuitBreaker", "failureThreshold and timeout must be positive when enabled")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format", fmt.Sprintf("unknown format %q", c.Logging.Format))
	}

	if c.Tracing.Enabled && (c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1) {
		add("tracing.samplingRate", "must be between 0 and 1")
	}

	return errors.Join(errs...)
}

func (s SecretConfig) validate() []error {
	var errs []error
	switch s.Source {
	case SecretSourceLiteral:
		if s.Value == "" {
			errs = append(errs, util.NewConfigError("auth.secret.value", "required for literal source"))
		}
	case SecretSourceEnv:
		if s.EnvVar == "" {
			errs = append(errs, util.NewConfigError("auth.secret.envVar", "required for env source"))
		}
	case SecretSourceFile:
		if s.File == "" {
			errs = append(errs, util.NewConfigError("auth.secret.file", "required for file source"))
		}
	case SecretSourceVault:
		if s.Vault.Address == "" || s.Vault.Path == "" {
			errs = append(errs, util.NewConfigError("auth.secret.vault", "address and path are required"))
		}
	default:
		errs = append(errs, util.NewConfigError("auth.secret.source", fmt.Sprintf("unknown source %q", s.Source)))
	}
	return errs
}
