// Package secrets resolves the token signing secret from one of several
// sources: the configuration file itself, an environment variable, a file,
// or a HashiCorp Vault KV v2 engine.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/tokengate/internal/config"
	"github.com/vyrodovalexey/tokengate/internal/observability"
	"github.com/vyrodovalexey/tokengate/internal/retry"
)

// ProviderType represents the type of secrets provider
type ProviderType string

const (
	// ProviderTypeEnv reads environment variables
	ProviderTypeEnv ProviderType = "env"
	// ProviderTypeFile reads local files
	ProviderTypeFile ProviderType = "file"
	// ProviderTypeVault reads a Vault KV v2 engine
	ProviderTypeVault ProviderType = "vault"
)

// Common errors for secrets providers
var (
	// ErrSecretNotFound is returned when a secret is not found
	ErrSecretNotFound = errors.New("secret not found")
	// ErrProviderNotConfigured is returned when the provider is not properly configured
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrInvalidPath is returned when the secret path is invalid
	ErrInvalidPath = errors.New("invalid secret path")
	// ErrKeyNotFound is returned when the secret exists but lacks the key
	ErrKeyNotFound = errors.New("secret key not found")
)

// DefaultKey is the data key used by single-value providers.
const DefaultKey = "value"

// Secret represents a secret with key-value data
type Secret struct {
	// Name is the path the secret was read from
	Name string
	// Data contains the secret key-value pairs
	Data map[string][]byte
	// Version is the version of the secret, if the provider tracks one
	Version string
}

// GetBytes returns a byte slice value from the secret data
func (s *Secret) GetBytes(key string) ([]byte, bool) {
	if s == nil || s.Data == nil {
		return nil, false
	}
	v, ok := s.Data[key]
	return v, ok
}

// Provider is the interface for secrets providers
type Provider interface {
	// Type returns the provider type
	Type() ProviderType

	// GetSecret retrieves a secret. Path format depends on the provider:
	//   - env: the environment variable name
	//   - file: the file path
	//   - vault: the path below the KV v2 mount
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// Close cleans up provider resources
	Close() error
}

// ResolveSigningSecret returns the signing secret selected by cfg.
func ResolveSigningSecret(ctx context.Context, cfg config.SecretConfig, logger observability.Logger) ([]byte, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	var (
		provider Provider
		path     string
		key      = DefaultKey
		err      error
	)

	switch cfg.Source {
	case config.SecretSourceLiteral, "":
		if cfg.Value == "" {
			return nil, fmt.Errorf("%w: empty literal secret", ErrProviderNotConfigured)
		}
		return []byte(cfg.Value), nil
	case config.SecretSourceEnv:
		provider, path = NewEnvProvider(logger), cfg.EnvVar
	case config.SecretSourceFile:
		provider, path = NewFileProvider(logger), cfg.File
	case config.SecretSourceVault:
		provider, err = NewVaultProvider(VaultProviderConfig{
			Address:   cfg.Vault.Address,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Mount:     cfg.Vault.Mount,
			Timeout:   cfg.Vault.Timeout.Duration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		path = cfg.Vault.Path
		if cfg.Vault.Key != "" {
			key = cfg.Vault.Key
		}
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrProviderNotConfigured, cfg.Source)
	}
	defer func() { _ = provider.Close() }()

	var secret *Secret
	if provider.Type() == ProviderTypeVault {
		secret, err = readWithRetry(ctx, provider, path, logger)
	} else {
		secret, err = provider.GetSecret(ctx, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read signing secret from %s: %w", provider.Type(), err)
	}

	value, ok := secret.GetBytes(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrKeyNotFound, key, secret.Name)
	}
	value = []byte(strings.TrimSpace(string(value)))
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %q in %s is empty", ErrKeyNotFound, key, secret.Name)
	}

	logger.Info("signing secret resolved",
		observability.String("source", string(provider.Type())),
		observability.String("path", secret.Name),
		observability.String("version", secret.Version),
	)

	return value, nil
}

// vaultRetry bounds the retries of a Vault read at startup.
var vaultRetry = retry.Config{MaxRetries: 2, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}

// readWithRetry reads path, retrying transient failures. A missing secret
// is not retried.
func readWithRetry(ctx context.Context, provider Provider, path string, logger observability.Logger) (*Secret, error) {
	var secret *Secret
	err := retry.Do(ctx, vaultRetry, func(ctx context.Context) error {
		var err error
		secret, err = provider.GetSecret(ctx, path)
		if errors.Is(err, ErrSecretNotFound) || errors.Is(err, ErrInvalidPath) {
			return retry.Permanent(err)
		}
		return err
	}, retry.WithOnRetry(func(attempt int, err error, backoff time.Duration) {
		logger.Warn("signing secret read failed, retrying",
			observability.String("source", string(provider.Type())),
			observability.Int("attempt", attempt),
			observability.Duration("backoff", backoff),
			observability.Error(err),
		)
	}))
	return secret, err
}
