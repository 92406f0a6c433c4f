package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/booksnap/booksnap-api/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityResolver maps a token subject to the signed-in profile.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, auth0ID string) (*services.Identity, error)
}

// ResolveSession attaches the identity of the token subject to the request
// context. Subjects without a mirrored profile continue anonymously, so the
// services report them as unauthenticated.
func ResolveSession(resolver IdentityResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := GetSubject(c)
		if err != nil {
			c.Next()
			return
		}

		id, err := resolver.ResolveIdentity(c.Request.Context(), subject)
		switch {
		case err == nil:
			c.Request = c.Request.WithContext(services.WithIdentity(c.Request.Context(), id))
			c.Set(IdentityKey, id)
		case errors.Is(err, services.ErrNotFound):
		default:
			log.Error("session lookup failed", zap.String("subject", subject), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": err.Error(),
				},
			})
			return
		}
		c.Next()
	}
}

// IdentityKey is the Gin context key holding the resolved *services.Identity.
const IdentityKey = "identity"
