package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cipher-chat/internal/identity"
	"cipher-chat/internal/telemetry"
)

const debugTokenTTL = 24 * time.Hour

// DebugOptions controls the debug-only endpoints.
type DebugOptions struct {
	Enabled bool
	// Tokens issues bearer tokens for local clients. Nil disables /debug/token.
	Tokens *identity.TokenVerifier
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, opts DebugOptions) {
	if !opts.Enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
			Action:    telemetry.ActionAuditProbe,
			RequestID: requestIDFromContext(c),
			UserID:    userIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/token/:user_id", func(c *gin.Context) {
		if opts.Tokens == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token signing not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": opts.Tokens.Issue(c.Param("user_id"), debugTokenTTL)})
	})
}
