// Package middleware provides HTTP middleware for edgetun's admin API,
// including API key authentication and request logging.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nullwave/edgetun/internal/api/models"
)

// RequireAPIKey enforces a shared-secret API key, accepted as the
// `X-API-Key` header, an `Authorization: Bearer <key>` header, or a `key`
// query parameter. If no key is configured, every request is rejected
// outright: an unprotected admin surface is never the right default.
func RequireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API_KEY not configured"})
			return
		}
		if got := extractKey(c); got == expected {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
	}
}

func extractKey(c *gin.Context) string {
	if k := c.GetHeader("X-API-Key"); k != "" {
		return k
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("key")
}
