package jwt

import (
	"fmt"
	"os"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ParseAlgorithm resolves an algorithm name case-insensitively.
// "none" is never accepted.
func ParseAlgorithm(name string) (jwa.SignatureAlgorithm, error) {
	for _, alg := range jwa.SignatureAlgorithms() {
		if alg == jwa.NoSignature {
			continue
		}
		if strings.EqualFold(alg.String(), name) {
			return alg, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

// IsHMAC reports whether alg is one of the shared-secret algorithms.
func IsHMAC(alg jwa.SignatureAlgorithm) bool {
	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
		return true
	default:
		return false
	}
}

// LoadPEMKey reads a PEM encoded key from path. Public keys are used for
// verification, private keys by the token command for signing.
func LoadPEMKey(path string) (jwk.Key, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied key path
	if err != nil {
		return nil, NewKeyError("failed to read key file "+path, err)
	}
	key, err := jwk.ParseKey(data, jwk.WithPEM(true))
	if err != nil {
		return nil, NewKeyError("failed to parse PEM key "+path, err)
	}
	return key, nil
}

// verificationKey returns the key material jws.Verify expects for alg.
func verificationKey(alg jwa.SignatureAlgorithm, secret []byte, publicKey jwk.Key) (interface{}, error) {
	if IsHMAC(alg) {
		if len(secret) == 0 {
			return nil, NewKeyError("empty secret for "+alg.String(), nil)
		}
		return secret, nil
	}
	if publicKey == nil {
		return nil, NewKeyError("public key required for "+alg.String(), nil)
	}
	if pub, err := publicKey.PublicKey(); err == nil {
		return pub, nil
	}
	return publicKey, nil
}
