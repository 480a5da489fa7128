package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	logger observability.Logger
}

// NewEnvProvider creates a new environment variable secrets provider
func NewEnvProvider(logger observability.Logger) *EnvProvider {
	return &EnvProvider{logger: logger}
}

// Type returns the provider type
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// GetSecret returns the variable's value under DefaultKey.
func (p *EnvProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	value, ok := os.LookupEnv(path)
	if !ok {
		return nil, fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, path)
	}

	p.logger.Debug("read secret from environment", observability.String("env_var", path))

	return &Secret{
		Name: path,
		Data: map[string][]byte{DefaultKey: []byte(value)},
	}, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error {
	return nil
}
