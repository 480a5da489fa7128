package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// VaultProviderConfig holds configuration for the Vault secrets provider
type VaultProviderConfig struct {
	// Address is the Vault server address
	Address string
	// Token authenticates requests; VAULT_TOKEN is used when empty
	Token string
	// Namespace is the Vault namespace (Enterprise only)
	Namespace string
	// Mount is the KV v2 mount point, "secret" by default
	Mount string
	// Timeout bounds each request
	Timeout time.Duration
}

// VaultProvider reads secrets from a Vault KV v2 engine.
type VaultProvider struct {
	client *vaultapi.Client
	mount  string
	logger observability.Logger
}

// NewVaultProvider creates a new Vault secrets provider
func NewVaultProvider(cfg VaultProviderConfig, logger observability.Logger) (*VaultProvider, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}

	apiConfig := vaultapi.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", apiConfig.Error)
	}
	apiConfig.Address = cfg.Address
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout
	}
	apiConfig.MaxRetries = 0

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &VaultProvider{
		client: client,
		mount:  mount,
		logger: logger.With(observability.String("component", "vault")),
	}, nil
}

// Type returns the provider type
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret reads the latest version of the secret at path.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}
	fullPath := fmt.Sprintf("%s/data/%s", p.mount, path)

	resp, err := p.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", fullPath, err)
	}
	// Deleted KV v2 versions come back with data: null.
	if resp == nil || resp.Data == nil || resp.Data["data"] == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, fullPath)
	}

	raw, ok := resp.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected payload at %s", ErrSecretNotFound, fullPath)
	}

	data := make(map[string][]byte, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			data[k] = []byte(val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			data[k] = encoded
		}
	}

	secret := &Secret{Name: fullPath, Data: data}
	if meta, ok := resp.Data["metadata"].(map[string]interface{}); ok {
		if version, ok := meta["version"].(json.Number); ok {
			secret.Version = version.String()
		}
	}

	p.logger.Debug("read secret from vault",
		observability.String("path", fullPath),
		observability.String("version", secret.Version),
	)

	return secret, nil
}

// Close drops the client token.
func (p *VaultProvider) Close() error {
	p.client.ClearToken()
	return nil
}
