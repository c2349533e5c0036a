package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campus_realtime/internal/domain"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, sender_id, type, related_ref, deep_link, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.RecipientID,
		nullableString(n.SenderID),
		n.Type,
		nullableString(n.RelatedRef),
		nullableString(n.DeepLink),
		n.Message,
		n.Read,
		toMicros(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) List(ctx context.Context, recipientID string, unreadOnly bool, offset, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, recipient_id, sender_id, type, related_ref, deep_link, message, is_read, created_at
		FROM notifications
		WHERE recipient_id = ? AND (? = 0 OR is_read = 0)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	res := []*domain.Notification{}
	for rows.Next() {
		var (
			n                 domain.Notification
			sender, ref, link sql.NullString
			createdAt         int64
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &sender, &n.Type, &ref, &link, &n.Message, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.SenderID = stringPtr(sender)
		n.RelatedRef = stringPtr(ref)
		n.DeepLink = stringPtr(link)
		n.CreatedAt = fromMicros(createdAt)
		res = append(res, &n)
	}
	return res, rows.Err()
}

func (r *NotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, recipientID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_id = ?`,
		id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireAffected(res)
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (r *NotificationRepo) Delete(ctx context.Context, recipientID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND recipient_id = ?`,
		id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return requireAffected(res)
}

func (r *NotificationRepo) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = ?`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return res.RowsAffected()
}

// PurgeReadBefore removes read notifications created before the cutoff.
func (r *NotificationRepo) PurgeReadBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`,
		toMicros(before),
	)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}
