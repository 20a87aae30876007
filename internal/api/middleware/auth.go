// Package middleware holds the gin middleware chain in front of the
// admin HTTP surface: bearer-token authentication and request ID
// propagation.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RequireAdminToken validates the bearer token on every admin request
// against secret using HMAC, the way the teacher's social-auth service
// validates an external provider's signed token, and stashes the
// token's subject as the request's actor_id.
func RequireAdminToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized, "success": false, "error": "UNAUTHORIZED", "message": "missing bearer token",
			})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized, "success": false, "error": "UNAUTHORIZED", "message": "invalid or expired token",
			})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized, "success": false, "error": "UNAUTHORIZED", "message": "invalid token claims",
			})
			return
		}
		if sub, ok := claims["sub"].(string); ok {
			if actorID, err := uuid.Parse(sub); err == nil {
				c.Set("actor_id", actorID)
			}
		}
		c.Next()
	}
}

// RequestID assigns a request-scoped UUID, read back by handlers for
// logging and echoed in the X-Request-Id response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}
