package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jishnu70/Chat-app-backend/internal/telemetry"
	"github.com/jishnu70/Chat-app-backend/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, registry *ws.Registry, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/ws", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"groups":      registry.Groups(),
			"connections": registry.Connections(),
		})
	})
}
