package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jishnu70/Chat-app-backend/internal/middleware"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
	"github.com/jishnu70/Chat-app-backend/internal/telemetry"
)

const requestIDContextKey = "request_id"

const maxPageSize = 200

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int {
	if userID := c.GetInt(middleware.UserIDKey); userID != 0 {
		return &userID
	}
	return nil
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// pathID parses an integer path parameter, answering 400 when it is not one.
func pathID(c *gin.Context, name, label string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label})
		return 0, false
	}
	return id, true
}

// pageParams reads ?before=<RFC3339>&limit=<n> for history endpoints.
func pageParams(c *gin.Context) (*time.Time, int, bool) {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before timestamp"})
			return nil, 0, false
		}
		before = &ts
	}

	limit := repositories.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return nil, 0, false
		}
		limit = n
	}
	return before, limit, true
}
