package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates bearer tokens and stores the caller's permissions
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, permissions, err := a.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("permissions", permissions)
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequirePermission checks if user has required permission
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get("permissions")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "no permissions found",
			})
			c.Abort()
			return
		}

		permissions, _ := perms.([]Permission)
		if !HasPermission(permissions, required) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"required": string(required),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func HasPermission(permissions []Permission, required Permission) bool {
	for _, p := range permissions {
		if p == required {
			return true
		}
	}
	return false
}
