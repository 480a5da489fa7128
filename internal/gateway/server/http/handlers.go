package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tokengate/internal/gateway/server/http/middleware"
	"github.com/vyrodovalexey/tokengate/internal/ratelimit"
	"github.com/vyrodovalexey/tokengate/internal/router"
	"github.com/vyrodovalexey/tokengate/internal/util"
)

// Response headers set on /gateway.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

// HealthMessage is the body of GET /health.
const HealthMessage = "API Gateway is running and healthy!"

// Router routes an authenticated identity to a backend.
type Router interface {
	Route(ctx context.Context, identity string) (*router.Response, error)
}

// Handlers wires the gateway's endpoints.
type Handlers struct {
	Router   Router
	Verifier middleware.Verifier
	// Metrics serves GET /metrics.
	Metrics http.Handler
	Logger  *zap.Logger
}

// Register installs the gateway routes on the server.
func (h *Handlers) Register(s *Server) {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := s.Engine()
	e.GET("/health", h.health)
	if h.Metrics != nil {
		e.GET("/metrics", gin.WrapH(h.Metrics))
	}
	e.GET("/gateway", middleware.Authenticate(h.Verifier, logger), h.gateway)

	e.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})
	e.HandleMethodNotAllowed = true
	e.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": "Method Not Allowed"})
	})
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": HealthMessage})
}

func (h *Handlers) gateway(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	resp, err := h.Router.Route(c.Request.Context(), identity)
	if err != nil {
		writeError(c, err)
		return
	}

	setRateLimitHeaders(c, resp.RateLimit)
	c.JSON(http.StatusOK, gin.H{
		"route":    resp.Backend,
		"response": resp.Body,
		"user":     identity,
	})
}

// writeError maps err to its status and a {"detail": ...} body.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var rle *router.RateLimitedError
	if errors.As(err, &rle) {
		c.Header(HeaderRateLimitLimit, strconv.Itoa(rle.Limit))
		c.Header(HeaderRateLimitRemaining, "0")
		c.Header(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(rle.RetryAfter)))
	}

	status := util.HTTPStatus(err)
	c.AbortWithStatusJSON(status, gin.H{"detail": errorDetail(status)})
}

func errorDetail(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "Rate limit exceeded"
	case http.StatusServiceUnavailable:
		return "No healthy backend services available"
	default:
		return http.StatusText(status)
	}
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.Result) {
	if result == nil || result.Limit == 0 {
		return
	}
	c.Header(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	c.Header(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}
