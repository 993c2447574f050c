package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/pkg/auth"
	"github.com/threadview/threadview/pkg/config"
)

// AuthMiddleware validates the bearer token on every request using the
// injected validator and stores the resulting claims on the gin context.
// The validator is built once at startup from the configured auth provider.
func AuthMiddleware(validator auth.Validator, cfg *config.Config) gin.HandlerFunc {
	if validator == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth validator not configured"})
		}
	}
	return func(c *gin.Context) {
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		setCallerContext(c, cfg, claims)
		c.Next()
	}
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("invalid Authorization format")
	}
	return validator.Validate(parts[1])
}

func setCallerContext(c *gin.Context, cfg *config.Config, claims *auth.Claims) {
	c.Set("userClaims", claims)
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = strings.TrimSpace(claims.Subject)
	}
	c.Set("userEmail", email)

	role := ""
	if v, ok := claims.Raw["role"].(string); ok {
		role = strings.ToUpper(strings.TrimSpace(v))
	}
	if role == "" && cfg != nil && cfg.Env == "dev" {
		role = strings.ToUpper(strings.TrimSpace(c.GetHeader("X-Role")))
	}
	if role == "" {
		role = "USER"
	}
	c.Set("userRole", role)
}

// GetClaims returns the validated claims set by AuthMiddleware.
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get("userClaims")
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
