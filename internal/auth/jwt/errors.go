package jwt

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/tokengate/internal/util"
)

var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	ErrTokenMissingClaim     = errors.New("required claim is missing")
	ErrEmptyToken            = errors.New("token is empty")

	// ErrUnsupportedAlgorithm and ErrInvalidKey are configuration errors,
	// returned when building a Verifier or signing a token.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")
	ErrInvalidKey           = errors.New("signing key is invalid")
)

// reasons maps failure causes to metric labels, checked in order.
var reasons = []struct {
	cause error
	label string
}{
	{ErrMissingHeader, "missing_credentials"},
	{ErrInvalidPrefix, "missing_credentials"},
	{ErrEmptyToken, "missing_credentials"},
	{ErrTokenExpired, "expired"},
	{ErrTokenInvalidSignature, "invalid_signature"},
	{ErrTokenMissingClaim, "missing_claim"},
}

// Reason returns the metric label for a verification failure. Anything it
// does not recognise is reported as malformed.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.cause) {
			return r.label
		}
	}
	return "malformed"
}

// ValidationError is a rejected credential. Message is safe to show to the
// client; Cause carries the detail for logs.
type ValidationError struct {
	Message string
	Cause   error
	// Claims is set when the token parsed far enough to read them.
	Claims *Claims
}

// NewValidationError returns a ValidationError without claims.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}

// WithClaims attaches the parsed claims and returns e.
func (e *ValidationError) WithClaims(claims *Claims) *ValidationError {
	e.Claims = claims
	return e
}

func (e *ValidationError) Error() string {
	return describe("jwt validation error", e.Message, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// Is makes every ValidationError match util.ErrUnauthenticated, so callers
// outside this package can classify it without importing it.
func (e *ValidationError) Is(target error) bool {
	if target == util.ErrUnauthenticated {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// KeyError is a problem with a configured signing or verification key. It
// matches ErrInvalidKey.
type KeyError struct {
	Message string
	Cause   error
}

// NewKeyError returns a KeyError.
func NewKeyError(message string, cause error) *KeyError {
	return &KeyError{Message: message, Cause: cause}
}

func (e *KeyError) Error() string {
	return describe("jwt key error", e.Message, e.Cause)
}

func (e *KeyError) Unwrap() error { return e.Cause }

func (e *KeyError) Is(target error) bool {
	return target == ErrInvalidKey
}

func describe(kind, message string, cause error) string {
	if cause == nil {
		return kind + ": " + message
	}
	return fmt.Sprintf("%s: %s: %v", kind, message, cause)
}
