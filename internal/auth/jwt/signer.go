package jwt

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// SignOptions describes a token to issue. Token issuance is not part of the
// gateway's request path; Sign backs the development "token" command and
// the tests.
type SignOptions struct {
	Subject   string
	Issuer    string
	TTL       time.Duration
	IssuedAt  time.Time
	Algorithm string
	// Key is the HMAC secret ([]byte) or a private jwk.Key.
	Key interface{}
}

// Sign issues a compact serialized JWT.
func Sign(opts SignOptions) (string, error) {
	name := opts.Algorithm
	if name == "" {
		name = jwa.HS256.String()
	}
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return "", err
	}

	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	builder := jwxjwt.NewBuilder().
		Subject(opts.Subject).
		IssuedAt(issuedAt).
		Expiration(issuedAt.Add(opts.TTL)).
		JwtID(uuid.NewString())
	if opts.Issuer != "" {
		builder = builder.Issuer(opts.Issuer)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwxjwt.Sign(tok, jwxjwt.WithKey(alg, opts.Key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}
