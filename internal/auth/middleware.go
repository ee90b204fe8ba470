package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Middleware authenticates the bearer token and stores the Principal on
// the gin context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse("unauthorized", "missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse("unauthorized", "invalid authorization header format", nil))
			return
		}

		p, err := s.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]), c.ClientIP(), c.GetHeader("User-Agent"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse("unauthorized", "invalid or expired token", nil))
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// AnonymousMiddleware stands in for Middleware when authentication is
// disabled.
func AnonymousMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalKey, Anonymous())
		c.Next()
	}
}

// RequireAccess rejects callers lacking required on acl.
func RequireAccess(acl string, required types.AccessLevel) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil || !p.Grants.Allows(acl, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"acl":      acl,
				"required": required.String(),
			})
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) *Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*Principal); ok {
			return p
		}
	}
	return nil
}
