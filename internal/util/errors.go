package util

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated covers every credential failure: missing header,
	// malformed token, bad signature, expiry.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRateLimited means the caller's bucket is empty.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNoBackendsAvailable means no healthy backend produced a response.
	ErrNoBackendsAvailable = errors.New("no backends available")

	ErrBackendUnavail = errors.New("backend unavailable")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// statusByCause lists the client-facing sentinels and their HTTP status.
var statusByCause = []struct {
	cause  error
	status int
}{
	{ErrUnauthenticated, http.StatusUnauthorized},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrNoBackendsAvailable, http.StatusServiceUnavailable},
}

// HTTPStatus returns the status code a client should see for err. Errors
// outside the taxonomy are internal errors.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, s := range statusByCause {
		if errors.Is(err, s.cause) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// ConfigError names the configuration field that failed validation.
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError returns a ConfigError for field. An empty field describes
// the configuration as a whole.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return "config error at " + e.Field + ": " + e.Message
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// BackendError describes one failed forward attempt or probe against
// Backend. It never reaches a client; the router folds exhausted attempts
// into ErrNoBackendsAvailable.
type BackendError struct {
	Backend string
	Message string
	Cause   error
}

// NewBackendError returns a BackendError. cause may be nil.
func NewBackendError(backend, message string, cause error) *BackendError {
	return &BackendError{Backend: backend, Message: message, Cause: cause}
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s: %s", e.Backend, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Cause }

func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavail
}

// StatusError is a backend answer outside the 2xx range whose body is not JSON.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
