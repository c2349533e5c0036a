package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"campus_realtime/internal/domain"
)

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

var _ domain.ProfileRepository = (*ProfileRepo)(nil)

func (r *ProfileRepo) Upsert(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, display_name, avatar_url, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = excluded.display_name,
		    avatar_url = excluded.avatar_url,
		    role = excluded.role
	`
	if _, err := r.db.ExecContext(ctx, query, p.UserID, p.DisplayName, p.AvatarURL, p.Role); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	res := make(map[string]*domain.Profile, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	profiles, err := r.query(ctx,
		`SELECT user_id, display_name, avatar_url, role FROM profiles WHERE user_id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		res[p.UserID] = p
	}
	return res, nil
}

// FindByDisplayNames matches display names case-insensitively.
func (r *ProfileRepo) FindByDisplayNames(ctx context.Context, names []string) ([]*domain.Profile, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = strings.ToLower(n)
	}
	return r.query(ctx,
		`SELECT user_id, display_name, avatar_url, role FROM profiles WHERE casefold(display_name) IN (`+placeholders(len(names))+`)`,
		args...,
	)
}

func (r *ProfileRepo) query(ctx context.Context, query string, args ...any) ([]*domain.Profile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var res []*domain.Profile
	for rows.Next() {
		p := &domain.Profile{}
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.AvatarURL, &p.Role); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
