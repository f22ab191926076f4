package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Middleware validates the Bearer token and stores the caller's
// identity in the gin context under "authUserID", "authUsername" and
// "authRole".
func Middleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header must be: Bearer <token>",
			})
			c.Abort()
			return
		}

		claims, err := service.VerifyToken(parts[1])
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = "token_expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   code,
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("authUserID", claims.UserID)
		c.Set("authUsername", claims.Username)
		c.Set("authRole", claims.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller has one of the roles.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerRole := c.GetString("authRole")
		for _, role := range roles {
			if callerRole == string(role) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Insufficient permissions",
		})
		c.Abort()
	}
}

// UserID returns the authenticated user's ID from the gin context.
func UserID(c *gin.Context) int64 {
	return c.GetInt64("authUserID")
}
