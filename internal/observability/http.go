package observability

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Headers read from clients and proxies.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderDeviceID  = "X-Device-ID"
	headerForwarded = "X-Forwarded-For"
	headerRealIP    = "X-Real-IP"
)

type requestIDKey struct{}

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDFromRequest prefers the id assigned by middleware over the raw header.
func RequestIDFromRequest(r *http.Request) string {
	if id := RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(HeaderRequestID)
}

func DeviceIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderDeviceID))
}

// IPFromRequest returns the left-most forwarded address, then X-Real-IP, then
// the socket peer.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get(headerForwarded); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(headerRealIP)); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
