package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/tokengate/internal/observability"
	"github.com/vyrodovalexey/tokengate/internal/util"
)

const (
	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key for request ID.
	RequestIDKey = "requestID"

	maxRequestIDLength = 128
)

// RequestID returns a middleware that reuses the caller's X-Request-ID when
// it is present and reasonably short, and generates a UUID otherwise.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(util.ContextWithRequestID(c.Request.Context(), id), id),
		)

		c.Next()
	}
}

// GetRequestID returns the request ID, or "" before RequestID has run.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
