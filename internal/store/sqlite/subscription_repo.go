package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"campus_realtime/internal/domain"
)

type SubscriptionRepo struct {
	db *sql.DB
}

func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

var _ domain.SubscriptionRepository = (*SubscriptionRepo)(nil)

// Upsert registers an endpoint. Re-registering an endpoint moves it to the
// new user and refreshes its keys.
func (r *SubscriptionRepo) Upsert(ctx context.Context, s *domain.PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = excluded.user_id,
		    p256dh = excluded.p256dh,
		    auth = excluded.auth,
		    updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.Endpoint, s.UserID, s.P256dh, s.Auth, toMicros(s.CreatedAt), toMicros(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) ListForUser(ctx context.Context, userID string) ([]*domain.PushSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT endpoint, user_id, p256dh, auth, created_at, updated_at
		FROM push_subscriptions
		WHERE user_id = ?
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var res []*domain.PushSubscription
	for rows.Next() {
		var (
			s                    domain.PushSubscription
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&s.Endpoint, &s.UserID, &s.P256dh, &s.Auth, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		s.CreatedAt = fromMicros(createdAt)
		s.UpdatedAt = fromMicros(updatedAt)
		res = append(res, &s)
	}
	return res, rows.Err()
}

func (r *SubscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) DeleteForUser(ctx context.Context, userID, endpoint string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = ? AND user_id = ?`,
		endpoint, userID,
	)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return requireAffected(res)
}
