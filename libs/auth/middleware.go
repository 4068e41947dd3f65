package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ContextUserIDKey = "user_id"

// Middleware gates a route group on a valid access token. A missing token
// is 401; a token that is present but fails verification is 403.
func Middleware(secret []byte, opts ...jwt.ParserOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "missing token"})
			return
		}

		claims, err := ParseTyped(token, secret, TokenTypeAccess, opts...)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "invalid token"})
			return
		}

		c.Set(ContextUserIDKey, claims.Subject)
		c.Next()
	}
}

// UserID returns the identity injected by Middleware, or "" on public routes.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}
