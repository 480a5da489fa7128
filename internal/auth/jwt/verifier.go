package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// Messages carried by ValidationError. They are the only thing that tells
// the failure kinds apart for a client.
const (
	msgMissingCredentials = "missing or invalid authorization header"
	msgMalformed          = "malformed token"
	msgInvalidSignature   = "invalid token signature"
	msgExpired            = "token has expired"
	msgMissingClaim       = "token is missing a required claim"
)

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	// Verify checks an Authorization header value and returns the sub claim.
	Verify(ctx context.Context, header string) (string, error)

	// Validate checks a raw token and returns its claims.
	Validate(ctx context.Context, token string) (*Claims, error)
}

// FailureRecorder receives a reason label for every rejected credential.
type FailureRecorder interface {
	RecordAuthFailure(reason string)
}

// Config configures a Verifier.
type Config struct {
	// Algorithm is the only algorithm accepted; defaults to HS256.
	Algorithm string
	// Secret is the HMAC key for HS* algorithms.
	Secret []byte
	// PublicKey verifies asymmetric algorithms.
	PublicKey jwk.Key
	// ClockSkew extends exp by this much.
	ClockSkew time.Duration
}

// verifier implements the Verifier interface.
type verifier struct {
	alg       jwa.SignatureAlgorithm
	key       interface{}
	skew      time.Duration
	extractor *HeaderExtractor
	now       func() time.Time
	logger    observability.Logger
	metrics   FailureRecorder
}

// VerifierOption is a functional option for the verifier.
type VerifierOption func(*verifier)

// WithVerifierLogger sets the logger for the verifier.
func WithVerifierLogger(logger observability.Logger) VerifierOption {
	return func(v *verifier) {
		v.logger = logger
	}
}

// WithVerifierMetrics sets the failure recorder for the verifier.
func WithVerifierMetrics(metrics FailureRecorder) VerifierOption {
	return func(v *verifier) {
		v.metrics = metrics
	}
}

// WithClock overrides the time source used for the expiry check.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *verifier) {
		v.now = now
	}
}

// NewVerifier creates a new Verifier.
func NewVerifier(cfg Config, opts ...VerifierOption) (Verifier, error) {
	name := cfg.Algorithm
	if name == "" {
		name = jwa.HS256.String()
	}
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}

	key, err := verificationKey(alg, cfg.Secret, cfg.PublicKey)
	if err != nil {
		return nil, err
	}

	v := &verifier{
		alg:       alg,
		key:       key,
		skew:      cfg.ClockSkew,
		extractor: NewHeaderExtractor("", ""),
		now:       time.Now,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify checks an Authorization header value and returns the sub claim.
func (v *verifier) Verify(ctx context.Context, header string) (string, error) {
	token, err := v.extractor.ExtractValue(header)
	if err != nil {
		return "", v.reject(ctx, NewValidationError(msgMissingCredentials, err))
	}

	claims, err := v.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Validate checks signature, expiry and subject of a raw token.
func (v *verifier) Validate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, v.reject(ctx, NewValidationError(msgMissingCredentials, ErrEmptyToken))
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, v.reject(ctx, NewValidationError(msgMalformed, fmt.Errorf("%w: %v", ErrTokenMalformed, err)))
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, v.reject(ctx, NewValidationError(msgMalformed, ErrTokenMalformed))
	}
	if got := sigs[0].ProtectedHeaders().Algorithm(); got != v.alg {
		return nil, v.reject(ctx, NewValidationError(msgInvalidSignature,
			fmt.Errorf("%w: token uses %s, expected %s", ErrTokenInvalidSignature, got, v.alg)))
	}

	if _, err := jws.Verify([]byte(token), jws.WithKey(v.alg, v.key)); err != nil {
		return nil, v.reject(ctx, NewValidationError(msgInvalidSignature, fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)))
	}

	// Signature is verified above; the time checks below use the injected clock.
	tok, err := jwxjwt.ParseInsecure([]byte(token))
	if err != nil {
		return nil, v.reject(ctx, NewValidationError(msgMalformed, fmt.Errorf("%w: %v", ErrTokenMalformed, err)))
	}
	claims := claimsFromToken(tok)

	if claims.ExpiresAt.IsZero() {
		return nil, v.reject(ctx, NewValidationError(msgMissingClaim, fmt.Errorf("%w: exp", ErrTokenMissingClaim)).WithClaims(claims))
	}
	if claims.IsExpired(v.now(), v.skew) {
		return nil, v.reject(ctx, NewValidationError(msgExpired, ErrTokenExpired).WithClaims(claims))
	}
	if claims.Subject == "" {
		return nil, v.reject(ctx, NewValidationError(msgMissingClaim, fmt.Errorf("%w: sub", ErrTokenMissingClaim)).WithClaims(claims))
	}

	return claims, nil
}

func (v *verifier) reject(ctx context.Context, err *ValidationError) error {
	reason := Reason(err)
	if v.metrics != nil {
		v.metrics.RecordAuthFailure(reason)
	}

	fields := []observability.Field{observability.String("reason", reason)}
	if err.Claims != nil && err.Claims.Subject != "" {
		fields = append(fields, observability.String("subject", err.Claims.Subject))
	}
	v.logger.WithContext(ctx).Debug("credential rejected", fields...)

	return err
}
