// Package demo implements the sample backend service used to exercise the
// gateway locally: GET / answers with a greeting naming the service and
// GET /health reports readiness.
package demo

import (
	"net/http"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tokengate/internal/gateway/server/http/middleware"
)

// Service is a demo backend.
type Service struct {
	name        string
	displayName string
	healthy     atomic.Bool
	logger      *zap.Logger
}

// NewService creates a healthy demo backend called name.
func NewService(name string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		name:        name,
		displayName: DisplayName(name),
		logger:      logger.With(zap.String("service", name)),
	}
	s.healthy.Store(true)
	return s
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// Healthy reports the current answer of GET /health.
func (s *Service) Healthy() bool {
	return s.healthy.Load()
}

// SetHealthy switches the answer of GET /health.
func (s *Service) SetHealthy(healthy bool) {
	if s.healthy.Swap(healthy) != healthy {
		s.logger.Info("demo backend health changed", zap.Bool("healthy", healthy))
	}
}

// Register installs the demo routes on e.
func (s *Service) Register(e *gin.Engine) {
	e.Use(middleware.RequestID(), middleware.Logging(s.logger), middleware.Recovery(s.logger))
	e.GET("/", s.hello)
	e.GET("/health", s.health)
}

func (s *Service) hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": s.name,
		"message": "Hello from " + s.displayName,
	})
}

func (s *Service) health(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// DisplayName turns "service1" into "Service 1".
func DisplayName(name string) string {
	if name == "" {
		return ""
	}

	cut := strings.IndexFunc(name, unicode.IsDigit)
	if cut <= 0 {
		return capitalize(name)
	}
	return capitalize(name[:cut]) + " " + name[cut:]
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
