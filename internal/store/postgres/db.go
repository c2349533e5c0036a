package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"campus_realtime/internal/domain"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the realtime schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Messages
		`CREATE TABLE IF NOT EXISTS messages (
			id          TEXT         PRIMARY KEY,
			context_id  TEXT         NOT NULL,
			sender_id   TEXT         NOT NULL,
			body        TEXT         NOT NULL DEFAULT '',
			attachments JSONB        NOT NULL DEFAULT '[]'::jsonb,
			reply_to    TEXT,
			created_at  TIMESTAMPTZ  NOT NULL,
			edited_at   TIMESTAMPTZ,
			is_deleted  BOOLEAN      NOT NULL DEFAULT FALSE,
			pinned      BOOLEAN      NOT NULL DEFAULT FALSE
		)`,

		// Reactions
		`CREATE TABLE IF NOT EXISTS message_reactions (
			id         BIGSERIAL    UNIQUE,
			message_id TEXT         NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id    TEXT         NOT NULL,
			emoji      TEXT         NOT NULL,
			created_at TIMESTAMPTZ  NOT NULL,
			PRIMARY KEY (message_id, user_id, emoji)
		)`,

		// Read receipts
		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id TEXT         NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id    TEXT         NOT NULL,
			read_at    TIMESTAMPTZ  NOT NULL,
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS read_markers (
			context_id   TEXT         NOT NULL,
			user_id      TEXT         NOT NULL,
			last_read_at TIMESTAMPTZ  NOT NULL,
			PRIMARY KEY (context_id, user_id)
		)`,

		// Notifications
		`CREATE TABLE IF NOT EXISTS notifications (
			id           TEXT         PRIMARY KEY,
			recipient_id TEXT         NOT NULL,
			sender_id    TEXT,
			type         TEXT         NOT NULL,
			related_ref  TEXT,
			deep_link    TEXT,
			message      TEXT         NOT NULL,
			is_read      BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ  NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			endpoint   TEXT         PRIMARY KEY,
			user_id    TEXT         NOT NULL,
			p256dh     TEXT         NOT NULL,
			auth       TEXT         NOT NULL,
			created_at TIMESTAMPTZ  NOT NULL,
			updated_at TIMESTAMPTZ  NOT NULL
		)`,

		// Read-models fed by the internal ingress
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id      TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_url   TEXT NOT NULL DEFAULT '',
			role         TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS context_members (
			context_id TEXT         NOT NULL,
			user_id    TEXT         NOT NULL,
			role       TEXT         NOT NULL DEFAULT 'member',
			joined_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (context_id, user_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_ctx_created ON messages(context_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_push_subscriptions_user ON push_subscriptions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_display_name ON profiles(LOWER(display_name))`,
		`CREATE INDEX IF NOT EXISTS idx_context_members_user ON context_members(user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
