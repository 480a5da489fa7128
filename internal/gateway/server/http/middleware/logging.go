package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig holds configuration for the logging middleware.
type LoggingConfig struct {
	Logger    *zap.Logger
	SkipPaths []string
}

// Logging returns a middleware that logs every completed request.
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return LoggingWithConfig(LoggingConfig{Logger: logger})
}

// LoggingWithConfig returns a logging middleware with custom configuration.
// Server errors log at error level, client errors at warn, the rest at info.
func LoggingWithConfig(config LoggingConfig) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := newPathSet(config.SkipPaths)

	return func(c *gin.Context) {
		if skip.has(c) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		ce := logger.Check(levelFor(status), "request completed")
		if ce == nil {
			return
		}

		fields := append(make([]zap.Field, 0, 9),
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		)
		if identity := GetIdentity(c); identity != "" {
			fields = append(fields, zap.String("identity", identity))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		ce.Write(fields...)
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
