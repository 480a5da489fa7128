package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Recovery returns a middleware that turns a handler panic into a 500 with
// the gateway's JSON error body.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err := fmt.Errorf("panic: %v", rec)

			logger.Error("panic recovered",
				zap.Error(err),
				zap.String("request_id", GetRequestID(c)),
				zap.String("path", c.Request.URL.Path),
				zap.ByteString("stack", debug.Stack()),
			)
			if span := GetSpan(c); span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "panic")
			}

			abortWithDetail(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}()

		c.Next()
	}
}
