package domain

import (
	"context"
	"time"
)

// Cursor is a keyset position in a context's history. Ordering is by
// CreatedAt then ID, both immutable.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// PageQuery selects one page of history, newest first. Before is an
// exclusive keyset bound and ignores Offset. Through is an inclusive bound
// that Offset counts from, so numbered pages stay put while newer messages
// arrive.
type PageQuery struct {
	Offset  int
	Limit   int
	Before  *Cursor
	Through *Cursor
}

// MessageRepository defines persistence operations for messages and the
// reactions and read receipts attached to them.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error
	SetPinned(ctx context.Context, id string, pinned bool) error
	Delete(ctx context.Context, id string) error
	AddReaction(ctx context.Context, messageID string, r Reaction) (bool, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	MarkRead(ctx context.Context, contextID, userID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, contextID, userID string) (int, error)
	GetReadMarker(ctx context.Context, contextID, userID string) (*ReadMarker, error)
	ListPage(ctx context.Context, contextID string, q PageQuery) ([]*Message, error)
	Search(ctx context.Context, contextID, query string, limit int) ([]*Message, error)
	ListPinned(ctx context.Context, contextID string, limit int) ([]*Message, error)
	PurgeContext(ctx context.Context, contextID string) error
}

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, recipientID string, unreadOnly bool, offset, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, recipientID, id string) error
	DeleteAll(ctx context.Context, recipientID string) (int64, error)
	PurgeReadBefore(ctx context.Context, before time.Time) (int64, error)
}

// SubscriptionRepository defines persistence operations for push subscriptions.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, s *PushSubscription) error
	ListForUser(ctx context.Context, userID string) ([]*PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	DeleteForUser(ctx context.Context, userID, endpoint string) error
}

// ProfileRepository defines access to the user profile read-model.
type ProfileRepository interface {
	Upsert(ctx context.Context, p *Profile) error
	GetByIDs(ctx context.Context, ids []string) (map[string]*Profile, error)
	FindByDisplayNames(ctx context.Context, names []string) ([]*Profile, error)
}

// MembershipRepository defines operations around context memberships.
type MembershipRepository interface {
	Upsert(ctx context.Context, m *Membership) error
	Delete(ctx context.Context, contextID, userID string) error
	Get(ctx context.Context, contextID, userID string) (*Membership, error)
	ListMembers(ctx context.Context, contextID string) ([]*Membership, error)
	PurgeContext(ctx context.Context, contextID string) error
}

// LastSeenStore persists the last-seen instant of users across restarts.
type LastSeenStore interface {
	SaveLastSeen(ctx context.Context, userID string, at time.Time) error
	LoadLastSeen(ctx context.Context, userID string) (*time.Time, error)
}
