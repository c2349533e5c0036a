package domain

import "time"

// Outbound socket event names.
const (
	EventMessageCreated      = "message-created"
	EventMessageUpdated      = "message-updated"
	EventMessageDeleted      = "message-deleted"
	EventTypingChanged       = "typing-changed"
	EventReadStateChanged    = "read-state-changed"
	EventPresenceChanged     = "presence-changed"
	EventNotificationCreated = "notification-created"
	EventContextDeleted      = "context-deleted"
	EventAck                 = "ack"
	EventError               = "error"
)

// Event is one outbound message on a socket.
type Event struct {
	Name string `json:"event"`
	Ref  string `json:"ref,omitempty"`
	Data any    `json:"data,omitempty"`
}

// MessageDeletedData is the payload of message-deleted.
type MessageDeletedData struct {
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId"`
}

// TypingChangedData is the payload of typing-changed. Typists is always the
// full live set.
type TypingChangedData struct {
	ContextID string   `json:"contextId"`
	Typists   []string `json:"typists"`
}

// ReadStateChangedData is the payload of read-state-changed.
type ReadStateChangedData struct {
	ContextID string `json:"contextId"`
	UserID    string `json:"userId"`
}

// PresenceChangedData is the payload of presence-changed.
type PresenceChangedData struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// ContextDeletedData is the payload of context-deleted.
type ContextDeletedData struct {
	ContextID string `json:"contextId"`
}

// ErrorData is the payload of error events.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
