package ws

import (
	"net/http"

	"cipher-chat/internal/observability"
)

// ConnInfo is request metadata captured at handshake for lifecycle events.
type ConnInfo struct {
	DeviceID  string
	IP        string
	RequestID string
	TraceID   string
}

func connInfoFromRequest(r *http.Request, traceID string) ConnInfo {
	return ConnInfo{
		DeviceID:  observability.DeviceIDFromRequest(r),
		IP:        observability.IPFromRequest(r),
		RequestID: observability.RequestIDFromRequest(r),
		TraceID:   traceID,
	}
}
