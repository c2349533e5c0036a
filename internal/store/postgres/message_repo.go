package postgres

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
		attachments []byte
		replyTo     sql.NullString
		editedAt    sql.NullTime
	)
	if err := s.Scan(
		&m.ID, &m.ContextID, &m.SenderID, &m.Body, &attachments, &replyTo,
		&m.CreatedAt, &editedAt, &m.Deleted, &m.Pinned,
	); err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if m.Attachments == nil {
		m.Attachments = []domain.Attachment{}
	}
	m.ReplyTo = stringPtr(replyTo)
	m.CreatedAt = m.CreatedAt.UTC()
	if editedAt.Valid {
		t := editedAt.Time.UTC()
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
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, context_id, sender_id, body, attachments, reply_to, created_at, edited_at, is_deleted, pinned)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)
	`, m.ID, m.ContextID, m.SenderID, m.Body, string(raw),
		nullableString(m.ReplyTo), m.CreatedAt, nullableTime(m.EditedAt), m.Deleted, m.Pinned,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id))
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
		`UPDATE messages SET body = $1, edited_at = $2 WHERE id = $3 AND NOT is_deleted`,
		body, editedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update message body: %w", err)
	}
	return requireAffected(res)
}

func (r *MessageRepo) SetPinned(ctx context.Context, id string, pinned bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET pinned = $1 WHERE id = $2 AND NOT is_deleted`,
		pinned, id,
	)
	if err != nil {
		return fmt.Errorf("set message pinned: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the message; reactions and receipts cascade.
func (r *MessageRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireAffected(res)
}

func (r *MessageRepo) AddReaction(ctx context.Context, messageID string, rc domain.Reaction) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`, messageID, rc.UserID, rc.Emoji, rc.CreatedAt)
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
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
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

func (r *MessageRepo) MarkRead(ctx context.Context, contextID, userID string, at time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $1::text, $2::timestamptz FROM messages m
		WHERE m.context_id = $3 AND m.sender_id <> $1 AND NOT m.is_deleted
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, userID, at, contextID)
	if err != nil {
		return 0, fmt.Errorf("insert reads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO read_markers (context_id, user_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (context_id, user_id) DO UPDATE
		SET last_read_at = GREATEST(read_markers.last_read_at, EXCLUDED.last_read_at)
	`, contextID, userID, at)
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
		WHERE m.context_id = $1 AND m.sender_id <> $2 AND NOT m.is_deleted
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $2
		  )
	`, contextID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) GetReadMarker(ctx context.Context, contextID, userID string) (*domain.ReadMarker, error) {
	rm := &domain.ReadMarker{ContextID: contextID, UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM read_markers WHERE context_id = $1 AND user_id = $2`,
		contextID, userID,
	).Scan(&rm.LastReadAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get read marker: %w", err)
	}
	rm.LastReadAt = rm.LastReadAt.UTC()
	return rm, nil
}

func (r *MessageRepo) ListPage(ctx context.Context, contextID string, q domain.PageQuery) ([]*domain.Message, error) {
	var (
		sb   strings.Builder
		args = []any{contextID}
	)
	sb.WriteString(`SELECT ` + messageColumns + ` FROM messages m WHERE m.context_id = $1 AND NOT m.is_deleted`)
	switch {
	case q.Before != nil:
		sb.WriteString(` AND (m.created_at, m.id) < ($2::timestamptz, $3::text)`)
		args = append(args, q.Before.CreatedAt, q.Before.ID)
	case q.Through != nil:
		sb.WriteString(` AND (m.created_at, m.id) <= ($2::timestamptz, $3::text)`)
		args = append(args, q.Through.CreatedAt, q.Through.ID)
	}
	args = append(args, q.Limit)
	fmt.Fprintf(&sb, ` ORDER BY m.created_at DESC, m.id DESC LIMIT $%d`, len(args))
	if q.Before == nil && q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))
	}
	return r.queryMessages(ctx, "list messages", sb.String(), args...)
}

func (r *MessageRepo) Search(ctx context.Context, contextID, query string, limit int) ([]*domain.Message, error) {
	pattern := "%" + escapeLike(query) + "%"
	return r.queryMessages(ctx, "search messages", `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN profiles p ON p.user_id = m.sender_id
		WHERE m.context_id = $1 AND NOT m.is_deleted
		  AND (m.body ILIKE $2 OR COALESCE(p.display_name, '') ILIKE $2)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3
	`, contextID, pattern, limit)
}

func (r *MessageRepo) ListPinned(ctx context.Context, contextID string, limit int) ([]*domain.Message, error) {
	return r.queryMessages(ctx, "list pinned", `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.context_id = $1 AND m.pinned AND NOT m.is_deleted
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`, contextID, limit)
}

func (r *MessageRepo) PurgeContext(ctx context.Context, contextID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE context_id = $1`, contextID); err != nil {
		return fmt.Errorf("purge messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM read_markers WHERE context_id = $1`, contextID); err != nil {
		return fmt.Errorf("purge read markers: %w", err)
	}
	return tx.Commit()
}

func (r *MessageRepo) queryMessages(ctx context.Context, op, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	res := []*domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
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
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	for rows.Next() {
		var (
			messageID string
			rc        domain.Reaction
		)
		if err := rows.Scan(&messageID, &rc.UserID, &rc.Emoji, &rc.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan reaction: %w", err)
		}
		rc.CreatedAt = rc.CreatedAt.UTC()
		if m := byID[messageID]; m != nil {
			m.Reactions = append(m.Reactions, rc)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT message_id, user_id
		FROM message_reads
		WHERE message_id = ANY($1)
		ORDER BY read_at ASC, user_id ASC
	`, ids)
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
