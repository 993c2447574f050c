package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireScope rejects requests whose claims do not carry the given scope.
// Claims without any scopes are treated as unscoped legacy tokens and pass,
// so static single-token deployments keep working.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok || claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
			return
		}
		if len(claims.Scopes) > 0 && !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing scope"})
			return
		}
		c.Next()
	}
}
