package handlers

import (
	"github.com/gin-gonic/gin"

	"cipher-chat/internal/middleware"
	"cipher-chat/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	return observability.RequestIDFromRequest(c.Request)
}

func userIDFromContext(c *gin.Context) string {
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		return userID
	}
	return c.GetHeader("X-User-ID")
}
