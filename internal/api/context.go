package api

import (
	"github.com/gin-gonic/gin"

	"coachsim/internal/api/middleware"
)

// userIDFromContext returns the authenticated user id attached by the auth
// middleware.
func userIDFromContext(c *gin.Context) (uint, bool) {
	value, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}
