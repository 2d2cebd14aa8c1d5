package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kristoman/standardgpt/internal/types"
)

// AuthMiddleware validates a bearer/cookie JWT and populates the request
// context with the caller's user id (types.UserIDContextKey), matching the
// teacher's TenantIDContextKey gating convention. The user id "anonymous"
// is used when secret is empty, so the server still runs without auth configured
// (e.g. local development).
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			ctx := context.WithValue(c.Request.Context(), types.UserIDContextKey, "anonymous")
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth token"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid auth token"})
			return
		}

		userID, _ := claims["sub"].(string)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token missing subject"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), types.UserIDContextKey, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie("auth_token"); err == nil && cookie != "" {
		return cookie
	}
	return ""
}

// UserIDFromContext reads the authenticated user id populated by
// AuthMiddleware, defaulting to "anonymous" when absent (e.g. in tests that
// call a handler directly without the middleware chain).
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(types.UserIDContextKey).(string); ok && id != "" {
		return id
	}
	return "anonymous"
}
