package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tokengate/internal/auth/jwt"
	"github.com/vyrodovalexey/tokengate/internal/util"
)

// IdentityKey is the gin context key for the authenticated identity.
const IdentityKey = "identity"

// Verifier turns an Authorization header into an identity.
type Verifier interface {
	Verify(ctx context.Context, header string) (string, error)
}

// Authenticate returns a middleware that rejects requests without a valid
// bearer token and stores the identity for the handlers that follow.
func Authenticate(verifier Verifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		identity, err := verifier.Verify(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			detail := "Not authenticated"
			var ve *jwt.ValidationError
			if errors.As(err, &ve) {
				detail = ve.Message
			}

			logger.Debug("authentication failed",
				zap.String("request_id", GetRequestID(c)),
				zap.String("reason", jwt.Reason(err)),
			)

			c.Header("WWW-Authenticate", "Bearer")
			abortWithDetail(c, util.HTTPStatus(err), detail)
			return
		}

		c.Set(IdentityKey, identity)
		c.Request = c.Request.WithContext(util.ContextWithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// GetIdentity returns the authenticated identity, or "" before Authenticate.
func GetIdentity(c *gin.Context) string {
	return c.GetString(IdentityKey)
}

// abortWithDetail ends the request with the {"detail": ...} error body every
// gateway error response uses.
func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
