package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// Middleware rejects requests without a valid bearer token and stores the Actor on the context.
func Middleware(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := tokens.Parse(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// AdminOnly must run after Middleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ActorFrom(c).IsAdmin() {
			abort(c, http.StatusForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

func ActorFrom(c *gin.Context) Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(Actor); ok {
			return a
		}
	}
	return Actor{}
}

func abort(c *gin.Context, code int, reason string) {
	kind := "unauthenticated"
	if code == http.StatusForbidden {
		kind = "permission_denied"
	}
	c.AbortWithStatusJSON(code, gin.H{"error": gin.H{"kind": kind, "reason": reason}})
}
