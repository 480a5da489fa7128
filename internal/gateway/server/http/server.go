// Package http provides the HTTP server of the gateway.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tokengate/internal/gateway/server/http/middleware"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Server represents the HTTP server of the gateway.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
	config     *ServerConfig
	mu         sync.RWMutex
	running    bool
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port              int
	Address           string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:              8000,
		Address:           "0.0.0.0",
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Address, fmt.Sprint(c.Port))
}

// NewServer creates a new HTTP server.
func NewServer(config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	return &Server{
		engine: gin.New(),
		logger: logger,
		config: config,
	}
}

// Use adds middleware to the server.
func (s *Server) Use(middleware ...gin.HandlerFunc) {
	s.engine.Use(middleware...)
}

// Engine returns the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. It returns nil after a graceful stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("server already running")
	}

	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		MaxHeaderBytes:    s.config.MaxHeaderBytes,
	}
	srv := s.httpServer
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		zap.String("address", ln.Addr().String()),
		zap.Duration("readTimeout", s.config.ReadTimeout),
		zap.Duration("writeTimeout", s.config.WriteTimeout),
	)

	err := srv.Serve(ln)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop stops the HTTP server gracefully, waiting for in-flight requests
// until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	running := s.running
	s.mu.RUnlock()

	if !running || srv == nil {
		return nil
	}

	s.logger.Info("stopping HTTP server")

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// StandardMiddleware returns the middleware chain every gateway route runs
// through, outermost first.
func StandardMiddleware(logger *zap.Logger, counter middleware.Counter, serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		middleware.RequestID(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: serviceName,
			SkipPaths:   []string{"/metrics"},
		}),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    logger,
			SkipPaths: []string{"/metrics"},
		}),
		middleware.CountRequests(counter),
		middleware.Recovery(logger),
	}
}
