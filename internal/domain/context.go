package domain

import (
	"fmt"
	"strings"
)

// ContextKind selects the authorization and recipient rules of a chat context.
type ContextKind string

const (
	KindGlobal       ContextKind = "global"
	KindSubject      ContextKind = "subject"
	KindStudyRoom    ContextKind = "study-room"
	KindConversation ContextKind = "conversation"
)

// ConversationKind distinguishes the peer-to-peer conversation flavours.
type ConversationKind string

const (
	ConversationDM    ConversationKind = "dm"
	ConversationStore ConversationKind = "store"
	ConversationMatch ConversationKind = "match"
)

// GlobalContextID is the id of the single campus-wide room.
const GlobalContextID = "global"

// ChatContext is a parsed chat context id.
//
// Ids carry their kind as a prefix: "global", "subject:<id>",
// "study-room:<id>", "dm:<id>", "store:<id>" and "match:<id>".
type ChatContext struct {
	ID           string           `json:"id"`
	Kind         ContextKind      `json:"kind"`
	Conversation ConversationKind `json:"conversation,omitempty"`
	EntityID     string           `json:"entityId,omitempty"`
}

// ParseContextID validates id and returns the context it names.
func ParseContextID(id string) (ChatContext, error) {
	if id == GlobalContextID {
		return ChatContext{ID: id, Kind: KindGlobal}, nil
	}
	prefix, entity, ok := strings.Cut(id, ":")
	if !ok || strings.TrimSpace(entity) == "" || strings.ContainsAny(entity, " \t\r\n") {
		return ChatContext{}, fmt.Errorf("%w: malformed context id %q", ErrInvalidArgument, id)
	}
	c := ChatContext{ID: id, EntityID: entity}
	switch prefix {
	case string(KindSubject):
		c.Kind = KindSubject
	case string(KindStudyRoom):
		c.Kind = KindStudyRoom
	case string(ConversationDM), string(ConversationStore), string(ConversationMatch):
		c.Kind = KindConversation
		c.Conversation = ConversationKind(prefix)
	default:
		return ChatContext{}, fmt.Errorf("%w: unknown context kind %q", ErrInvalidArgument, prefix)
	}
	return c, nil
}

// NotificationType is the notification type tag for a message posted in c.
func (c ChatContext) NotificationType() string {
	if c.Kind == KindConversation {
		return string(c.Conversation) + "-message"
	}
	return string(c.Kind) + "-message"
}
