package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus_realtime/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `m.id, m.context_id, m.sender_id, m.body, m.attachments, m.reply_to,
	m.created_at, m.edited_at, m.is_deleted, m.pinned`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (*domain.Message, error) {
	var (
		m           domain.Message
		attachments string
		replyTo     sql.NullString
		createdAt   int64
		editedAt    sql.NullInt64
	)
	if err := s.Scan(
		&m.ID,
		&m.ContextID,
		&m.SenderID,
		&m.Body,
		&attachments,
		&replyTo,
		&createdAt,
		&editedAt,
		&m.Deleted,
		&m.Pinned,
	); err != nil {
		return nil, err
	}
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if m.Attachments == nil {
		m.Attachments = []domain.Attachment{}
	}
	m.ReplyTo = stringPtr(replyTo)
	m.CreatedAt = fromMicros(createdAt)
	if editedAt.Valid {
		t := fromMicros(editedAt.Int64)
		m.EditedAt = &t
	}
	m.Reactions = []domain.Reaction{}
	m.ReadBy = []string{}
	return &m, nil
}

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, context_id, sender_id, body, attachments, reply_to, created_at, edited_at, is_deleted, pinned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		m.ContextID,
		m.SenderID,
		m.Body,
		string(raw),
		nullableString(m.ReplyTo),
		toMicros(m.CreatedAt),
		nullableMicros(m.EditedAt),
		m.Deleted,
		m.Pinned,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = ?`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if err := r.loadRelations(ctx, []*domain.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET body = ?, edited_at = ? WHERE id = ? AND is_deleted = 0`,
		body, toMicros(editedAt), id,
	)
	if err != nil {
		return fmt.Errorf("update message body: %w", err)
	}
	return requireAffected(res)
}

func (r *MessageRepo) SetPinned(ctx context.Context, id string, pinned bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET pinned = ? WHERE id = ? AND is_deleted = 0`,
		pinned, id,
	)
	if err != nil {
		return fmt.Errorf("set message pinned: %w", err)
	}
	return requireAffected(res)
}

func (r *MessageRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("delete reactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reads WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("delete reads: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *MessageRepo) AddReaction(ctx context.Context, messageID string, rc domain.Reaction) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
		messageID, rc.UserID, rc.Emoji, toMicros(rc.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkRead adds userID to readBy of every message in the context not sent by
// the user. Existing receipts are left untouched.
func (r *MessageRepo) MarkRead(ctx context.Context, contextID, userID string, at time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ? FROM messages m
		WHERE m.context_id = ? AND m.sender_id <> ? AND m.is_deleted = 0
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		userID, toMicros(at), contextID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO read_markers (context_id, user_id, last_read_at)
		VALUES (?, ?, ?)
		ON CONFLICT (context_id, user_id) DO UPDATE
		SET last_read_at = MAX(read_markers.last_read_at, excluded.last_read_at)`,
		contextID, userID, toMicros(at),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert read marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, contextID, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.context_id = ? AND m.sender_id <> ? AND m.is_deleted = 0
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?
		  )`,
		contextID, userID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) GetReadMarker(ctx context.Context, contextID, userID string) (*domain.ReadMarker, error) {
	var at int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM read_markers WHERE context_id = ? AND user_id = ?`,
		contextID, userID,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get read marker: %w", err)
	}
	return &domain.ReadMarker{ContextID: contextID, UserID: userID, LastReadAt: fromMicros(at)}, nil
}

func (r *MessageRepo) ListPage(ctx context.Context, contextID string, q domain.PageQuery) ([]*domain.Message, error) {
	var (
		sb   strings.Builder
		args = []any{contextID}
	)
	sb.WriteString(`SELECT ` + messageColumns + ` FROM messages m WHERE m.context_id = ? AND m.is_deleted = 0`)
	switch {
	case q.Before != nil:
		sb.WriteString(` AND (m.created_at < ? OR (m.created_at = ? AND m.id < ?))`)
		at := toMicros(q.Before.CreatedAt)
		args = append(args, at, at, q.Before.ID)
	case q.Through != nil:
		sb.WriteString(` AND (m.created_at < ? OR (m.created_at = ? AND m.id <= ?))`)
		at := toMicros(q.Through.CreatedAt)
		args = append(args, at, at, q.Through.ID)
	}
	sb.WriteString(` ORDER BY m.created_at DESC, m.id DESC LIMIT ?`)
	args = append(args, q.Limit)
	if q.Before == nil && q.Offset > 0 {
		sb.WriteString(` OFFSET ?`)
		args = append(args, q.Offset)
	}

	return r.queryMessages(ctx, "list messages", sb.String(), args...)
}

// Search matches body text or sender display name, case-insensitively.
func (r *MessageRepo) Search(ctx context.Context, contextID, query string, limit int) ([]*domain.Message, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	q := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN profiles p ON p.user_id = m.sender_id
		WHERE m.context_id = ? AND m.is_deleted = 0
		  AND (casefold(m.body) LIKE ? ESCAPE '\' OR casefold(COALESCE(p.display_name, '')) LIKE ? ESCAPE '\')
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`
	return r.queryMessages(ctx, "search messages", q, contextID, pattern, pattern, limit)
}

func (r *MessageRepo) ListPinned(ctx context.Context, contextID string, limit int) ([]*domain.Message, error) {
	q := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.context_id = ? AND m.pinned = 1 AND m.is_deleted = 0
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`
	return r.queryMessages(ctx, "list pinned", q, contextID, limit)
}

func (r *MessageRepo) PurgeContext(ctx context.Context, contextID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM message_reactions WHERE message_id IN (SELECT id FROM messages WHERE context_id = ?)`,
		`DELETE FROM message_reads WHERE message_id IN (SELECT id FROM messages WHERE context_id = ?)`,
		`DELETE FROM messages WHERE context_id = ?`,
		`DELETE FROM read_markers WHERE context_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, contextID); err != nil {
			return fmt.Errorf("purge context: %w", err)
		}
	}
	return tx.Commit()
}

// queryMessages runs a message select and loads reactions and receipts once
// the row cursor is closed, since the pool holds a single connection.
func (r *MessageRepo) queryMessages(ctx context.Context, op, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := []*domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows.Close()

	if err := r.loadRelations(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *MessageRepo) loadRelations(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Message, len(msgs))
	args := make([]any, 0, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
		args = append(args, m.ID)
	}
	in := placeholders(len(msgs))

	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id IN (`+in+`)
		ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	for rows.Next() {
		var (
			messageID string
			rc        domain.Reaction
			at        int64
		)
		if err := rows.Scan(&messageID, &rc.UserID, &rc.Emoji, &at); err != nil {
			rows.Close()
			return fmt.Errorf("scan reaction: %w", err)
		}
		rc.CreatedAt = fromMicros(at)
		if m := byID[messageID]; m != nil {
			m.Reactions = append(m.Reactions, rc)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("load reactions: %w", err)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT message_id, user_id
		FROM message_reads
		WHERE message_id IN (`+in+`)
		ORDER BY read_at ASC, user_id ASC`, args...)
	if err != nil {
		return fmt.Errorf("load reads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("scan read: %w", err)
		}
		if m := byID[messageID]; m != nil {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return rows.Err()
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
