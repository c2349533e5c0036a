package domain

import "time"

// Attachment is an opaque media reference carried by a message.
type Attachment struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// Reaction is a (user, emoji) pair attached to a message.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message represents a single chat message. SenderID, ContextID and CreatedAt
// never change after creation.
type Message struct {
	ID          string       `json:"id"`
	ContextID   string       `json:"contextId"`
	SenderID    string       `json:"senderId"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
	ReplyTo     *string      `json:"replyTo"`
	CreatedAt   time.Time    `json:"createdAt"`
	EditedAt    *time.Time   `json:"editedAt"`
	Deleted     bool         `json:"deleted"`
	Reactions   []Reaction   `json:"reactions"`
	ReadBy      []string     `json:"readBy"`
	Pinned      bool         `json:"pinned"`
}

// HasReaction reports whether userID already reacted with emoji.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// IsReadBy reports whether userID is in the readBy set.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Profile is the display read-model of a user, owned by the surrounding
// application and mirrored here for message views and search.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Profile roles with moderation meaning.
const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Membership records that a user belongs to a chat context.
type Membership struct {
	ContextID string    `json:"contextId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Membership roles.
const (
	MemberRoleMember    = "member"
	MemberRoleModerator = "moderator"
)

// ReplySummary is the resolved reply target carried by a MessageView.
type ReplySummary struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Body       string `json:"body"`
}

// MessageView is a message with its relational fields resolved.
type MessageView struct {
	*Message
	Sender Profile       `json:"sender"`
	Reply  *ReplySummary `json:"reply"`
}

// ReadMarker is the point up to which a user has read a context.
type ReadMarker struct {
	ContextID  string    `json:"contextId"`
	UserID     string    `json:"userId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

// Notification is a persisted per-recipient notification record.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	SenderID    *string   `json:"senderId"`
	Type        string    `json:"type"`
	RelatedRef  *string   `json:"relatedRef"`
	DeepLink    *string   `json:"deepLink"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PushSubscription is a registered web-push endpoint of one device.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	UserID    string    `json:"userId"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PresenceRecord is the presence state of one user.
type PresenceRecord struct {
	UserID      string     `json:"userId"`
	IsOnline    bool       `json:"isOnline"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"lastSeen"`
}
