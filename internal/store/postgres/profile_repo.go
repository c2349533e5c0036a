package postgres

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
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, avatar_url, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    avatar_url = EXCLUDED.avatar_url,
		    role = EXCLUDED.role
	`, p.UserID, p.DisplayName, p.AvatarURL, p.Role)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	res := make(map[string]*domain.Profile, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	profiles, err := r.query(ctx,
		`SELECT user_id, display_name, avatar_url, role FROM profiles WHERE user_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		res[p.UserID] = p
	}
	return res, nil
}

func (r *ProfileRepo) FindByDisplayNames(ctx context.Context, names []string) ([]*domain.Profile, error) {
	if len(names) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}
	return r.query(ctx,
		`SELECT user_id, display_name, avatar_url, role FROM profiles WHERE LOWER(display_name) = ANY($1)`, lowered)
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
