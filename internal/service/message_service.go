package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"campus_realtime/internal/domain"
)

const (
	defaultHistoryPageSize = 50
	maxHistoryPageSize     = 100
	maxPinnedLimit         = 50
	maxEmojiRunes          = 32
	maxAttachments         = 10
)

// MessageNotifier receives every message once it is persisted and published.
type MessageNotifier interface {
	NotifyMessage(cc domain.ChatContext, m *domain.Message)
}

// MessageService is the message mutation engine. Every mutation reads the
// current state, validates, writes and publishes while holding the lock of
// the message's context, so subscribers of one context observe events in
// the order they were stored.
type MessageService struct {
	messages domain.MessageRepository
	profiles domain.ProfileRepository
	members  domain.MembershipRepository
	policies *Policies
	hub      Broadcaster
	notifier MessageNotifier
	locks    *keyedMutex
	now      func() time.Time
	logger   *slog.Logger

	purgeHooks  []func(contextID string)
	removeHooks []func(contextID, userID string)

	MaxBodyRunes int
	SearchLimit  int
	PinnedLimit  int
}

func NewMessageService(
	messages domain.MessageRepository,
	profiles domain.ProfileRepository,
	members domain.MembershipRepository,
	policies *Policies,
	hub Broadcaster,
	notifier MessageNotifier,
	logger *slog.Logger,
) *MessageService {
	return &MessageService{
		messages:     messages,
		profiles:     profiles,
		members:      members,
		policies:     policies,
		hub:          hub,
		notifier:     notifier,
		locks:        newKeyedMutex(),
		now:          time.Now,
		logger:       logger.With("component", "messages"),
		MaxBodyRunes: 5000,
		SearchLimit:  50,
		PinnedLimit:  5,
	}
}

// OnContextPurged registers fn to run after a context has been purged.
func (s *MessageService) OnContextPurged(fn func(contextID string)) {
	s.purgeHooks = append(s.purgeHooks, fn)
}

// OnMemberRemoved registers fn to run after a removal took away a user's
// read access to a context.
func (s *MessageService) OnMemberRemoved(fn func(contextID, userID string)) {
	s.removeHooks = append(s.removeHooks, fn)
}

func (s *MessageService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// SendInput is the payload of a send request.
type SendInput struct {
	ContextID   string              `json:"contextId"`
	Body        string              `json:"body"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	ReplyTo     *string             `json:"replyTo,omitempty"`
}

// Send validates and persists a new message, publishes message-created and
// hands the message to the notifier.
func (s *MessageService) Send(ctx context.Context, senderID string, in SendInput) (*domain.MessageView, error) {
	cc, policy, err := s.resolve(in.ContextID)
	if err != nil {
		return nil, err
	}
	if err := s.validateBody(in.Body, len(in.Attachments) > 0); err != nil {
		return nil, err
	}
	if err := validateAttachments(in.Attachments); err != nil {
		return nil, err
	}
	if err := allowed(policy.CanPost(ctx, cc, senderID)); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(cc.ID)
	defer unlock()

	replyTo := in.ReplyTo
	if replyTo != nil && *replyTo == "" {
		replyTo = nil
	}
	if replyTo != nil {
		target, err := s.messages.GetByID(ctx, *replyTo)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidReply
		}
		if err != nil {
			return nil, fmt.Errorf("get reply target: %w", err)
		}
		if target.ContextID != cc.ID || target.Deleted {
			return nil, domain.ErrInvalidReply
		}
	}

	m := &domain.Message{
		ID:          newID(),
		ContextID:   cc.ID,
		SenderID:    senderID,
		Body:        in.Body,
		Attachments: in.Attachments,
		ReplyTo:     replyTo,
		CreatedAt:   s.timestamp(),
		Reactions:   []domain.Reaction{},
		ReadBy:      []string{},
	}
	if m.Attachments == nil {
		m.Attachments = []domain.Attachment{}
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	view := s.view(ctx, m)
	s.hub.Broadcast(cc.ID, domain.Event{Name: domain.EventMessageCreated, Data: view})

	if s.notifier != nil {
		s.notifier.NotifyMessage(cc, m)
	}
	return view, nil
}

// Edit replaces the body of a message. Only its sender may edit it, and
// only while they can still read its context.
func (s *MessageService) Edit(ctx context.Context, requesterID, messageID, body string) (*domain.MessageView, error) {
	return s.mutate(ctx, messageID, func(cc domain.ChatContext, policy Policy, m *domain.Message) (bool, error) {
		if err := allowed(policy.CanRead(ctx, cc, requesterID)); err != nil {
			return false, err
		}
		if m.SenderID != requesterID {
			return false, fmt.Errorf("%w: only the sender may edit a message", domain.ErrForbidden)
		}
		if err := s.validateBody(body, len(m.Attachments) > 0); err != nil {
			return false, err
		}
		at := s.timestamp()
		if err := s.messages.UpdateBody(ctx, m.ID, body, at); err != nil {
			return false, fmt.Errorf("update message: %w", err)
		}
		return true, nil
	})
}

// Delete removes a message. The sender and context moderators may delete.
func (s *MessageService) Delete(ctx context.Context, requesterID, messageID string) error {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	cc, policy, err := s.resolve(m.ContextID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(cc.ID)
	defer unlock()

	m, err = s.current(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != requesterID {
		mod, err := policy.IsModerator(ctx, cc, requesterID)
		if err != nil {
			return fmt.Errorf("check moderator: %w", err)
		}
		if !mod {
			return fmt.Errorf("%w: only the sender or a moderator may delete a message", domain.ErrForbidden)
		}
	}
	if err := s.messages.Delete(ctx, m.ID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.hub.Broadcast(cc.ID, domain.Event{
		Name: domain.EventMessageDeleted,
		Data: domain.MessageDeletedData{MessageID: m.ID, ContextID: cc.ID},
	})
	return nil
}

// React adds the (user, emoji) reaction. Repeating it changes nothing and
// publishes nothing.
func (s *MessageService) React(ctx context.Context, userID, messageID, emoji string) (*domain.MessageView, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}
	return s.mutate(ctx, messageID, func(cc domain.ChatContext, policy Policy, m *domain.Message) (bool, error) {
		if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
			return false, err
		}
		if m.HasReaction(userID, emoji) {
			return false, nil
		}
		added, err := s.messages.AddReaction(ctx, m.ID, domain.Reaction{UserID: userID, Emoji: emoji, CreatedAt: s.timestamp()})
		if err != nil {
			return false, fmt.Errorf("add reaction: %w", err)
		}
		return added, nil
	})
}

// Unreact removes the (user, emoji) reaction if present.
func (s *MessageService) Unreact(ctx context.Context, userID, messageID, emoji string) (*domain.MessageView, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}
	return s.mutate(ctx, messageID, func(cc domain.ChatContext, policy Policy, m *domain.Message) (bool, error) {
		if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
			return false, err
		}
		if !m.HasReaction(userID, emoji) {
			return false, nil
		}
		removed, err := s.messages.RemoveReaction(ctx, m.ID, userID, emoji)
		if err != nil {
			return false, fmt.Errorf("remove reaction: %w", err)
		}
		return removed, nil
	})
}

// TogglePin flips the pinned flag. Moderators only.
func (s *MessageService) TogglePin(ctx context.Context, requesterID, messageID string) (*domain.MessageView, error) {
	return s.mutate(ctx, messageID, func(cc domain.ChatContext, policy Policy, m *domain.Message) (bool, error) {
		mod, err := policy.IsModerator(ctx, cc, requesterID)
		if err != nil {
			return false, fmt.Errorf("check moderator: %w", err)
		}
		if !mod {
			return false, fmt.Errorf("%w: only moderators may pin messages", domain.ErrForbidden)
		}
		if err := s.messages.SetPinned(ctx, m.ID, !m.Pinned); err != nil {
			return false, fmt.Errorf("set pinned: %w", err)
		}
		return true, nil
	})
}

// mutate runs apply under the context lock against the current stored
// message. When apply reports a change, the refreshed message is published
// as message-updated.
func (s *MessageService) mutate(
	ctx context.Context,
	messageID string,
	apply func(cc domain.ChatContext, policy Policy, m *domain.Message) (bool, error),
) (*domain.MessageView, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	cc, policy, err := s.resolve(m.ContextID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(cc.ID)
	defer unlock()

	m, err = s.current(ctx, messageID)
	if err != nil {
		return nil, err
	}
	changed, err := apply(cc, policy, m)
	if err != nil {
		return nil, err
	}
	if changed {
		if m, err = s.messages.GetByID(ctx, messageID); err != nil {
			return nil, fmt.Errorf("reload message: %w", err)
		}
	}
	view := s.view(ctx, m)
	if changed {
		s.hub.Broadcast(cc.ID, domain.Event{Name: domain.EventMessageUpdated, Data: view})
	}
	return view, nil
}

// current re-reads a message under its context lock. A message deleted in
// the meantime is reported as not found.
func (s *MessageService) current(ctx context.Context, messageID string) (*domain.Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.Deleted {
		return nil, fmt.Errorf("%w: message deleted", domain.ErrNotFound)
	}
	return m, nil
}

// MarkRead marks every message of the context not sent by userID as read by
// userID and returns how many messages changed.
func (s *MessageService) MarkRead(ctx context.Context, userID, contextID string) (int64, error) {
	cc, policy, err := s.resolve(contextID)
	if err != nil {
		return 0, err
	}
	if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(cc.ID)
	defer unlock()

	n, err := s.messages.MarkRead(ctx, cc.ID, userID, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if n > 0 {
		s.hub.Broadcast(cc.ID, domain.Event{
			Name: domain.EventReadStateChanged,
			Data: domain.ReadStateChangedData{ContextID: cc.ID, UserID: userID},
		})
	}
	return n, nil
}

// UnreadState is the read position of one user in one context.
type UnreadState struct {
	ContextID  string     `json:"contextId"`
	Count      int        `json:"count"`
	LastReadAt *time.Time `json:"lastReadAt"`
}

// Unread recomputes the unread count of userID in contextID.
func (s *MessageService) Unread(ctx context.Context, userID, contextID string) (*UnreadState, error) {
	cc, policy, err := s.resolve(contextID)
	if err != nil {
		return nil, err
	}
	if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
		return nil, err
	}
	n, err := s.messages.CountUnread(ctx, cc.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	st := &UnreadState{ContextID: cc.ID, Count: n}
	marker, err := s.messages.GetReadMarker(ctx, cc.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("get read marker: %w", err)
	}
	if marker != nil {
		at := marker.LastReadAt
		st.LastReadAt = &at
	}
	return st, nil
}

// HistoryQuery selects one page of history. Before, an opaque cursor taken
// from a previous page, takes precedence over Page. Anchor, returned with
// the first numbered page, pins later numbered pages to the messages that
// existed when that page was read.
type HistoryQuery struct {
	Page     int
	PageSize int
	Before   string
	Anchor   string
}

// HistoryPage holds messages oldest first. NextCursor fetches the page of
// older messages and is empty when there are none.
type HistoryPage struct {
	Items      []*domain.MessageView `json:"items"`
	NextCursor string                `json:"nextCursor,omitempty"`
	Anchor     string                `json:"anchor,omitempty"`
	HasMore    bool                  `json:"hasMore"`
}

// History returns one page of a context's messages.
func (s *MessageService) History(ctx context.Context, userID, contextID string, q HistoryQuery) (*HistoryPage, error) {
	cc, policy, err := s.resolve(contextID)
	if err != nil {
		return nil, err
	}
	if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
		return nil, err
	}

	page, size := normalizePage(q.Page, q.PageSize, defaultHistoryPageSize, maxHistoryPageSize)
	pq := domain.PageQuery{Offset: (page - 1) * size, Limit: size + 1}
	switch {
	case q.Before != "":
		cur, err := DecodeCursor(q.Before)
		if err != nil {
			return nil, err
		}
		pq.Before = &cur
		pq.Offset = 0
	case q.Anchor != "":
		cur, err := DecodeCursor(q.Anchor)
		if err != nil {
			return nil, err
		}
		pq.Through = &cur
	}

	msgs, err := s.messages.ListPage(ctx, cc.ID, pq)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := &HistoryPage{}
	if len(msgs) > size {
		msgs = msgs[:size]
		out.HasMore = true
	}
	if out.HasMore {
		oldest := msgs[len(msgs)-1]
		out.NextCursor = EncodeCursor(domain.Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID})
	}
	switch {
	case q.Before != "":
	case q.Anchor != "":
		out.Anchor = q.Anchor
	case page == 1 && len(msgs) > 0:
		out.Anchor = EncodeCursor(domain.Cursor{CreatedAt: msgs[0].CreatedAt, ID: msgs[0].ID})
	}

	// stored newest first, delivered oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	out.Items = s.views(ctx, msgs)
	return out, nil
}

// Search finds messages in a context whose body or sender display name
// contains query, ignoring case. Newest first.
func (s *MessageService) Search(ctx context.Context, userID, contextID, query string) ([]*domain.MessageView, error) {
	cc, policy, err := s.resolve(contextID)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidArgument)
	}
	if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
		return nil, err
	}
	msgs, err := s.messages.Search(ctx, cc.ID, query, s.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return s.views(ctx, msgs), nil
}

// Pinned returns the most recently pinned messages of a context.
func (s *MessageService) Pinned(ctx context.Context, userID, contextID string, limit int) ([]*domain.MessageView, error) {
	cc, policy, err := s.resolve(contextID)
	if err != nil {
		return nil, err
	}
	if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.PinnedLimit
	}
	if limit > maxPinnedLimit {
		limit = maxPinnedLimit
	}
	msgs, err := s.messages.ListPinned(ctx, cc.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pinned: %w", err)
	}
	return s.views(ctx, msgs), nil
}

// Authorize checks that userID may read contextID and returns the parsed
// context.
func (s *MessageService) Authorize(ctx context.Context, userID, contextID string) (domain.ChatContext, error) {
	cc, policy, err := s.resolve(contextID)
	if err != nil {
		return domain.ChatContext{}, err
	}
	if err := allowed(policy.CanRead(ctx, cc, userID)); err != nil {
		return domain.ChatContext{}, err
	}
	return cc, nil
}

// PurgeContext removes every trace of a context whose owning entity was
// deleted. Subscribers receive context-deleted before anything is removed.
func (s *MessageService) PurgeContext(ctx context.Context, contextID string) error {
	cc, err := domain.ParseContextID(contextID)
	if err != nil {
		return err
	}
	if cc.Kind == domain.KindGlobal {
		return fmt.Errorf("%w: the global context cannot be purged", domain.ErrInvalidArgument)
	}

	unlock := s.locks.Lock(cc.ID)
	defer unlock()

	s.hub.Broadcast(cc.ID, domain.Event{
		Name: domain.EventContextDeleted,
		Data: domain.ContextDeletedData{ContextID: cc.ID},
	})
	if err := s.messages.PurgeContext(ctx, cc.ID); err != nil {
		return fmt.Errorf("purge messages: %w", err)
	}
	if err := s.members.PurgeContext(ctx, cc.ID); err != nil {
		return fmt.Errorf("purge memberships: %w", err)
	}
	for _, fn := range s.purgeHooks {
		fn(cc.ID)
	}
	s.logger.Info("context purged", "context_id", cc.ID)
	return nil
}

// RemoveMember deletes userID's membership of contextID. When the user can
// no longer read the context, its live subscriptions are dropped through
// the OnMemberRemoved hooks before RemoveMember returns.
func (s *MessageService) RemoveMember(ctx context.Context, contextID, userID string) error {
	cc, policy, err := s.resolve(contextID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(cc.ID)
	defer unlock()

	if err := s.members.Delete(ctx, cc.ID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	ok, err := policy.CanRead(ctx, cc, userID)
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	if ok {
		return nil
	}
	for _, fn := range s.removeHooks {
		fn(cc.ID, userID)
	}
	s.logger.Info("member removed", "context_id", cc.ID, "user_id", userID)
	return nil
}

func (s *MessageService) resolve(contextID string) (domain.ChatContext, Policy, error) {
	cc, err := domain.ParseContextID(contextID)
	if err != nil {
		return domain.ChatContext{}, nil, err
	}
	policy, err := s.policies.For(cc)
	if err != nil {
		return domain.ChatContext{}, nil, err
	}
	return cc, policy, nil
}

func (s *MessageService) view(ctx context.Context, m *domain.Message) *domain.MessageView {
	return s.views(ctx, []*domain.Message{m})[0]
}

// views resolves sender profiles and reply summaries for msgs. Lookup
// failures degrade to the bare user id rather than failing the read.
func (s *MessageService) views(ctx context.Context, msgs []*domain.Message) []*domain.MessageView {
	replies := make(map[string]*domain.Message)
	userIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		userIDs = append(userIDs, m.SenderID)
		if m.ReplyTo == nil {
			continue
		}
		if _, ok := replies[*m.ReplyTo]; ok {
			continue
		}
		target, err := s.messages.GetByID(ctx, *m.ReplyTo)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("resolve reply target", "message_id", *m.ReplyTo, "error", err)
			}
			replies[*m.ReplyTo] = nil
			continue
		}
		replies[*m.ReplyTo] = target
		userIDs = append(userIDs, target.SenderID)
	}

	profs, err := s.profiles.GetByIDs(ctx, withoutUser(userIDs, ""))
	if err != nil {
		s.logger.Warn("resolve sender profiles", "error", err)
		profs = nil
	}
	profile := func(id string) domain.Profile {
		if p := profs[id]; p != nil {
			return *p
		}
		return domain.Profile{UserID: id, DisplayName: id}
	}

	out := make([]*domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := &domain.MessageView{Message: m, Sender: profile(m.SenderID)}
		if m.ReplyTo != nil {
			if target := replies[*m.ReplyTo]; target != nil {
				v.Reply = &domain.ReplySummary{
					ID:         target.ID,
					SenderID:   target.SenderID,
					SenderName: profile(target.SenderID).DisplayName,
					Body:       preview(target.Body),
				}
			}
		}
		out = append(out, v)
	}
	return out
}

func (s *MessageService) validateBody(body string, hasAttachments bool) error {
	if strings.TrimSpace(body) == "" && !hasAttachments {
		return fmt.Errorf("%w: message body cannot be empty", domain.ErrInvalidArgument)
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return fmt.Errorf("%w: message body exceeds %d characters", domain.ErrInvalidArgument, s.MaxBodyRunes)
	}
	return nil
}

func validateAttachments(list []domain.Attachment) error {
	if len(list) > maxAttachments {
		return fmt.Errorf("%w: at most %d attachments", domain.ErrInvalidArgument, maxAttachments)
	}
	for _, a := range list {
		if strings.TrimSpace(a.URL) == "" || strings.TrimSpace(a.Kind) == "" {
			return fmt.Errorf("%w: attachment url and kind are required", domain.ErrInvalidArgument)
		}
	}
	return nil
}

// validateEmoji accepts a short code without whitespace or control
// characters, either a literal emoji or a :shortcode:.
func validateEmoji(emoji string) error {
	if emoji == "" || !utf8.ValidString(emoji) || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return fmt.Errorf("%w: malformed emoji", domain.ErrInvalidArgument)
	}
	for _, r := range emoji {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: malformed emoji", domain.ErrInvalidArgument)
		}
	}
	return nil
}

// allowed turns a policy answer into an error.
func allowed(ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("check policy: %w", err)
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

// EncodeCursor renders a history position as an opaque url-safe token.
func EncodeCursor(c domain.Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (domain.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidArgument)
	}
	micros, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return domain.Cursor{}, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidArgument)
	}
	us, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidArgument)
	}
	return domain.Cursor{CreatedAt: time.UnixMicro(us).UTC(), ID: id}, nil
}
