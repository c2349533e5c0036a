package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campus_realtime/internal/domain"
)

type MembershipRepo struct {
	db *sql.DB
}

func NewMembershipRepo(db *sql.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

var _ domain.MembershipRepository = (*MembershipRepo)(nil)

func (r *MembershipRepo) Upsert(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO context_members (context_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (context_id, user_id) DO UPDATE SET role = excluded.role
	`
	if _, err := r.db.ExecContext(ctx, query, m.ContextID, m.UserID, m.Role, toMicros(m.JoinedAt)); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (r *MembershipRepo) Delete(ctx context.Context, contextID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM context_members WHERE context_id = ? AND user_id = ?`,
		contextID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return requireAffected(res)
}

func (r *MembershipRepo) Get(ctx context.Context, contextID, userID string) (*domain.Membership, error) {
	m := &domain.Membership{ContextID: contextID, UserID: userID}
	var joined int64
	err := r.db.QueryRowContext(ctx,
		`SELECT role, joined_at FROM context_members WHERE context_id = ? AND user_id = ?`,
		contextID, userID,
	).Scan(&m.Role, &joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	m.JoinedAt = fromMicros(joined)
	return m, nil
}

func (r *MembershipRepo) ListMembers(ctx context.Context, contextID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, role, joined_at
		FROM context_members
		WHERE context_id = ?
		ORDER BY joined_at ASC, user_id ASC`, contextID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var res []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{ContextID: contextID}
		var joined int64
		if err := rows.Scan(&m.UserID, &m.Role, &joined); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = fromMicros(joined)
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MembershipRepo) PurgeContext(ctx context.Context, contextID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM context_members WHERE context_id = ?`, contextID); err != nil {
		return fmt.Errorf("purge members: %w", err)
	}
	return nil
}
