package auth

import (
	"net/http"
	"strings"
	"time"

	"leadgen-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, m)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		attach(c, claims)
		c.Next()
	}
}

// OptionalAccessToken attaches identity when a valid token is present and
// lets anonymous requests through.
func OptionalAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, m); ok {
			attach(c, claims)
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id stored by the middleware.
func CurrentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

func bearerClaims(c *gin.Context, m *Manager) (Claims, bool) {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		return Claims{}, false
	}
	claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), TokenTypeAccess, time.Now())
	if err != nil {
		return Claims{}, false
	}
	return claims, true
}

func attach(c *gin.Context, claims Claims) {
	ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.Role)
	if claims.Email != "" {
		ctx = WithEmail(ctx, claims.Email)
	}
	c.Request = c.Request.WithContext(ctx)

	// Also store on gin context for handler convenience.
	c.Set("user_id", claims.UserID)
	c.Set("role", claims.Role)
	c.Set("email", claims.Email)
	logger.Enrich(c, "user_id", claims.UserID)
}
