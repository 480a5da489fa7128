package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/tokengate/internal/util"
)

// Attempt failure reasons, used as metric labels.
const (
	ReasonTimeout     = "timeout"
	ReasonConnection  = "connection"
	ReasonStatus      = "status"
	ReasonInvalidBody = "invalid_body"
	ReasonCircuitOpen = "circuit_open"
)

// errInvalidBody marks a 2xx response whose body is not JSON.
var errInvalidBody = errors.New("response body is not valid JSON")

// RateLimitedError is returned when the identity has no tokens left.
type RateLimitedError struct {
	Identity   string
	Limit      int
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Identity, e.RetryAfter)
}

// Unwrap returns util.ErrRateLimited.
func (e *RateLimitedError) Unwrap() error {
	return util.ErrRateLimited
}

// FailureReason classifies a failed forward attempt.
func FailureReason(err error) string {
	var (
		netErr    net.Error
		statusErr *util.StatusError
	)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ReasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	case errors.As(err, &statusErr):
		return ReasonStatus
	case errors.Is(err, errInvalidBody):
		return ReasonInvalidBody
	default:
		return ReasonConnection
	}
}
