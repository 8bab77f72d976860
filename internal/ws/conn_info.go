package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jishnu70/Chat-app-backend/internal/observability"
)

const (
	KindDirect = "direct"
	KindGroup  = "group"
)

// ConnInfo describes one accepted websocket connection for logs and events.
type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  int
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, kind string, resourceID int, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		Kind:        kind,
		ResourceID:  resourceID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
