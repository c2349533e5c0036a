package sqlite

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	moderncsqlite "modernc.org/sqlite"
)

func init() {
	if err := moderncsqlite.RegisterDeterministicScalarFunction("casefold", 1, casefold); err != nil {
		panic(fmt.Sprintf("register casefold: %v", err))
	}
}

// casefold lowercases text with Unicode rules. SQLite's LOWER only folds
// ASCII, so case-insensitive lookups compare casefold(column) against a
// strings.ToLower'd argument.
func casefold(_ *moderncsqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Open opens a SQLite database with the given DSN. Foreign keys are enabled
// on every pooled connection and the pool is limited to a single connection,
// which serializes writers and keeps ":memory:" databases shared.
func Open(dsn string) (*sql.DB, error) {
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent CREATE TABLE / CREATE INDEX statements.
// Timestamps are stored as unix microseconds.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			context_id  TEXT NOT NULL,
			sender_id   TEXT NOT NULL,
			body        TEXT NOT NULL DEFAULT '',
			attachments TEXT NOT NULL DEFAULT '[]',
			reply_to    TEXT DEFAULT NULL,
			created_at  INTEGER NOT NULL,
			edited_at   INTEGER DEFAULT NULL,
			is_deleted  BOOLEAN NOT NULL DEFAULT 0,
			pinned      BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
			message_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			emoji      TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (message_id, user_id, emoji),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			read_at    INTEGER NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS read_markers (
			context_id   TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			last_read_at INTEGER NOT NULL,
			PRIMARY KEY (context_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id           TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			sender_id    TEXT DEFAULT NULL,
			type         TEXT NOT NULL,
			related_ref  TEXT DEFAULT NULL,
			deep_link    TEXT DEFAULT NULL,
			message      TEXT NOT NULL,
			is_read      BOOLEAN NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			endpoint   TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			p256dh     TEXT NOT NULL,
			auth       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id      TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_url   TEXT NOT NULL DEFAULT '',
			role         TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS context_members (
			context_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'member',
			joined_at  INTEGER NOT NULL,
			PRIMARY KEY (context_id, user_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_ctx_created ON messages(context_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
		`CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_push_subscriptions_user ON push_subscriptions(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_display_name ON profiles(display_name);`,
		`CREATE INDEX IF NOT EXISTS idx_context_members_user ON context_members(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullableMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
