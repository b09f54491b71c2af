package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cipher-chat/internal/delivery"
	"cipher-chat/internal/middleware"
	"cipher-chat/internal/models"
)

// MessageService is the delivery surface used by the HTTP API.
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID, text, image string) (models.Message, error)
	FetchHistory(ctx context.Context, userID, otherID string) ([]models.Message, error)
	Edit(ctx context.Context, userID, messageID, text string) (models.Message, error)
	Delete(ctx context.Context, userID, messageID string) (models.Message, error)
}

// PresenceSource reports who is online.
type PresenceSource interface {
	OnlineUsers() []string
}

// MessageHandler manages direct message endpoints.
type MessageHandler struct {
	messages MessageService
	presence PresenceSource
	log      *slog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages MessageService, presence PresenceSource, log *slog.Logger) *MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessageHandler{messages: messages, presence: presence, log: log}
}

// GetMessages returns the conversation with another user, oldest first.
// Fetching marks the caller's pending incoming messages delivered.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	otherID := c.Param("user_id")
	if otherID == "" || otherID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	msgs, err := h.messages.FetchHistory(c.Request.Context(), userID, otherID)
	if err != nil {
		h.writeError(c, err, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage stores a new message addressed to another user.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		Text  string `json:"text"`
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("user_id"), req.Text, req.Image)
	if err != nil {
		h.writeError(c, err, "failed to send message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"newMessage": msg})
}

// EditMessage replaces the text of one of the caller's messages.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("message_id"), req.Text)
	if err != nil {
		h.writeError(c, err, "failed to edit message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage soft-deletes one of the caller's messages.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	msg, err := h.messages.Delete(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("message_id"))
	if err != nil {
		h.writeError(c, err, "failed to delete message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": msg.ID})
}

// Presence returns the users with at least one live session.
func (h *MessageHandler) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"onlineUsers": h.presence.OnlineUsers()})
}

func (h *MessageHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, delivery.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, delivery.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can change this message"})
	case errors.Is(err, delivery.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, delivery.ErrMessageDeleted):
		c.JSON(http.StatusConflict, gin.H{"error": "message was deleted"})
	default:
		h.log.Error("http.request.fail", "path", c.FullPath(), "user_id", userIDFromContext(c), "request_id", requestIDFromContext(c), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
