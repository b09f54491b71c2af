package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cipher-chat/internal/observability"
)

// RequestID propagates or assigns a request id, echoes it in the response and
// stores it on the request context for audit events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(observability.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(observability.HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}
