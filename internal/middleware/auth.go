package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"staffchat/internal/models"
	"staffchat/internal/repositories"
)

// IdentityKey is the gin context key holding the caller's models.Identity.
const IdentityKey = "identity"

// AuthMiddleware resolves the bearer token to a staff identity. Identities
// without chat privilege are rejected.
func AuthMiddleware(staff repositories.StaffRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		who, err := staff.GetByToken(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, repositories.ErrStaffNotFound) {
				slog.ErrorContext(c.Request.Context(), "token lookup failed", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if !who.CanChat() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "chat not permitted"})
			return
		}

		c.Set(IdentityKey, who)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// IdentityFrom returns the identity set by AuthMiddleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	val, ok := c.Get(IdentityKey)
	if !ok {
		return models.Identity{}, false
	}
	who, ok := val.(models.Identity)
	return who, ok
}
