package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"cipher-chat/internal/identity"
	"cipher-chat/internal/observability"
)

// Config tunes websocket sessions.
type Config struct {
	SendQueueSize   int
	WriteTimeout    time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	// AllowedOrigins empty means any origin is accepted.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	return c
}

// ChatWebSocketHandler accepts one websocket per tab or device and runs its
// read and write loops.
type ChatWebSocketHandler struct {
	hub      *Hub
	router   *Router
	verifier identity.Verifier
	cfg      Config
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, router *Router, verifier identity.Verifier, cfg Config, log *slog.Logger) *ChatWebSocketHandler {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := &ChatWebSocketHandler{hub: hub, router: router, verifier: verifier, cfg: cfg, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Handle authenticates, upgrades and registers the connection.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("cipher-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.verifier.VerifyRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if claimed := c.Query("userId"); claimed != "" && claimed != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "user id does not match credentials"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Info("ws.upgrade.fail", "user_id", userID, "err", err)
		return
	}

	info := connInfoFromRequest(c.Request, span.SpanContext().TraceID().String())
	session := NewSession(userID, info, h.cfg.SendQueueSize)

	// The request context ends when Handle returns; the loops outlive it.
	loopCtx := context.WithoutCancel(ctx)

	go h.writeLoop(conn, session)
	h.hub.Connect(session)

	observability.IncWSSessions()
	observability.PublishWSEvent(loopCtx, h.wsEvent("ws_connect", session, ""))
	h.log.Info("ws.connect", "session_id", session.ID, "user_id", userID, "ip", info.IP)

	go h.readLoop(loopCtx, conn, session)
}

func (h *ChatWebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *Session) {
	var closeReason string
	defer func() {
		h.hub.Disconnect(session.ID)
		session.Close()
		_ = conn.Close()
		observability.DecWSSessions()
		observability.PublishWSEvent(ctx, h.wsEvent("ws_disconnect", session, closeReason))
		h.log.Info("ws.disconnect", "session_id", session.ID, "user_id", session.UserID, "reason", closeReason)
	}()

	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-session.Done():
					// closed by the server side
				default:
					observability.PublishWSEvent(ctx, h.wsEvent("ws_error", session, closeReason))
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.router.Dispatch(ctx, session, frame)
	}
}

func (h *ChatWebSocketHandler) writeLoop(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(h.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-session.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Info("ws.write.fail", "session_id", session.ID, "err", err)
				session.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				session.Close()
				return
			}
		case <-session.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		}
	}
}

func (h *ChatWebSocketHandler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

func (h *ChatWebSocketHandler) wsEvent(name string, s *Session, reason string) observability.WSEvent {
	return observability.WSEvent{
		Name:        name,
		ConnID:      s.ID,
		UserID:      s.UserID,
		DeviceID:    s.Info.DeviceID,
		IP:          s.Info.IP,
		RequestID:   s.Info.RequestID,
		TraceID:     s.Info.TraceID,
		ConnectedAt: s.ConnectedAt,
		Reason:      reason,
	}
}
