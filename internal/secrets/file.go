package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// FileProvider reads a secret from a file, such as a mounted Kubernetes
// secret or a Docker secret.
type FileProvider struct {
	logger observability.Logger
}

// NewFileProvider creates a new file secrets provider.
func NewFileProvider(logger observability.Logger) *FileProvider {
	return &FileProvider{logger: logger}
}

// Type returns the provider type
func (p *FileProvider) Type() ProviderType {
	return ProviderTypeFile
}

// GetSecret returns the file contents under DefaultKey.
func (p *FileProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	clean := filepath.Clean(path)

	data, err := os.ReadFile(clean) //nolint:gosec // operator-supplied secret path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, clean)
		}
		return nil, fmt.Errorf("failed to read secret file %s: %w", clean, err)
	}

	p.logger.Debug("read secret from file", observability.String("path", clean))

	return &Secret{
		Name: clean,
		Data: map[string][]byte{DefaultKey: data},
	}, nil
}

// Close is a no-op.
func (p *FileProvider) Close() error {
	return nil
}
