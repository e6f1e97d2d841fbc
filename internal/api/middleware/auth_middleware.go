package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coachsim/internal/auth"
)

// Context keys populated by AuthMiddleware for downstream handlers.
const (
	UserIDKey    = "userID"
	UserEmailKey = "userEmail"
)

// AuthMiddleware validates the bearer token on protected routes. A missing or
// malformed Authorization header yields 401; a token that is present but
// invalid or expired yields 403. Valid claims are attached to the context.
func AuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header missing"})
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token missing"})
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserEmailKey, claims.Email)
		c.Next()
	}
}
