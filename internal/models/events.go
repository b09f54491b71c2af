package models

import "encoding/json"

// Inbound websocket events (client -> server).
const (
	EventMessageDelivered = "messageDelivered"
	EventMarkAsRead       = "markAsRead"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventCallUser         = "call-user"
	EventCallAccepted     = "call-accepted"
	EventCallRejected     = "call-rejected"
	EventCallEnded        = "call-ended"
	EventICECandidate     = "ice-candidate"
	EventPing             = "ping"
)

// Outbound websocket events (server -> client).
const (
	EventOnlineUsers          = "getOnlineUsers"
	EventNewMessage           = "newMessage"
	EventMessageStatusUpdated = "messageStatusUpdated"
	EventMessagesRead         = "messagesRead"
	EventMessageUpdated       = "messageUpdated"
	EventMessageDeleted       = "messageDeleted"
	EventPong                 = "pong"
)

// SocketEvent is the frame exchanged over the websocket in both directions.
type SocketEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewSocketEvent encodes data into a frame.
func NewSocketEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SocketEvent{Event: event, Data: raw})
}

// DeliveredAck is sent by a receiver session once a message is received.
type DeliveredAck struct {
	MessageID  string `json:"messageId"`
	ReceiverID string `json:"receiverId"`
}

// MarkAsRead is sent while the reader has the conversation open.
type MarkAsRead struct {
	MyID         string `json:"myId"`
	UserToChatID string `json:"userToChatId"`
}

// MessagesRead is the collapsed read receipt pushed after a read sweep.
type MessagesRead struct {
	ReaderID   string   `json:"readerId"`
	SenderID   string   `json:"senderId"`
	MessageIDs []string `json:"messageIds"`
}

// MessageDeleted carries only the id of a soft-deleted message.
type MessageDeleted struct {
	ID string `json:"id"`
}

// Typing is relayed untouched except for the sender id.
type Typing struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}
