package postgres

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

func (r *SubscriptionRepo) Upsert(ctx context.Context, s *domain.PushSubscription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    updated_at = EXCLUDED.updated_at
	`, s.Endpoint, s.UserID, s.P256dh, s.Auth, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) ListForUser(ctx context.Context, userID string) ([]*domain.PushSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT endpoint, user_id, p256dh, auth, created_at, updated_at
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var res []*domain.PushSubscription
	for rows.Next() {
		s := &domain.PushSubscription{}
		if err := rows.Scan(&s.Endpoint, &s.UserID, &s.P256dh, &s.Auth, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *SubscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) DeleteForUser(ctx context.Context, userID, endpoint string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1 AND user_id = $2`,
		endpoint, userID,
	)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return requireAffected(res)
}
