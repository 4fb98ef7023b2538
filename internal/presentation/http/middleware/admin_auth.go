package middleware

import (
	"net/http"
	"strings"

	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware requires a valid admin bearer token. With no JWT secret
// configured every admin route is refused.
func AdminAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": security.ErrAdminDisabled.Error()})
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		token := ""
		if len(authHeader) > 7 && strings.HasPrefix(authHeader, "Bearer ") {
			token = authHeader[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		claims, err := security.ValidateAdminToken(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		c.Set("adminClaims", claims)
		c.Next()
	}
}
