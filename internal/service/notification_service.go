package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/metrics"
	"campus_realtime/internal/push"
	"campus_realtime/internal/workerpool"
)

const (
	deliveryTimeout = 15 * time.Second
	previewRunes    = 120

	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

// Broadcaster publishes events to live sockets.
type Broadcaster interface {
	Broadcast(contextID string, ev domain.Event) int
	SendToUser(userID string, ev domain.Event) int
}

// PresenceReader answers whether a user holds a live connection.
type PresenceReader interface {
	IsOnline(userID string) bool
}

// Dispatcher runs background tasks without blocking the caller.
type Dispatcher interface {
	TrySubmit(task workerpool.Task) bool
}

// NotifyRequest is one notification event to fan out.
type NotifyRequest struct {
	RecipientIDs []string `json:"recipientIds"`
	SenderID     *string  `json:"senderId,omitempty"`
	Type         string   `json:"type"`
	RelatedRef   *string  `json:"relatedRef,omitempty"`
	DeepLink     *string  `json:"deepLink,omitempty"`
	Message      string   `json:"message"`
}

func (r NotifyRequest) validate() error {
	if len(r.RecipientIDs) == 0 {
		return fmt.Errorf("%w: recipientIds is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(r.Type) == "" {
		return fmt.Errorf("%w: type is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", domain.ErrInvalidArgument)
	}
	return nil
}

// pushPayload is the JSON body delivered to service workers.
type pushPayload struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	DeepLink   *string `json:"deepLink,omitempty"`
	RelatedRef *string `json:"relatedRef,omitempty"`
}

// NotificationService persists notifications and fans them out to live
// sockets and web push. Every recipient is handled on its own so one
// failure never affects another.
type NotificationService struct {
	notifications domain.NotificationRepository
	subscriptions domain.SubscriptionRepository
	profiles      domain.ProfileRepository
	policies      *Policies
	hub           Broadcaster
	presence      PresenceReader
	pusher        push.Pusher
	pool          Dispatcher
	metrics       *metrics.Metrics
	now           func() time.Time
	logger        *slog.Logger

	AppName string
}

func NewNotificationService(
	notifications domain.NotificationRepository,
	subscriptions domain.SubscriptionRepository,
	profiles domain.ProfileRepository,
	policies *Policies,
	hub Broadcaster,
	presence PresenceReader,
	pusher push.Pusher,
	pool Dispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *NotificationService {
	if pusher == nil {
		pusher = push.Noop{}
	}
	return &NotificationService{
		notifications: notifications,
		subscriptions: subscriptions,
		profiles:      profiles,
		policies:      policies,
		hub:           hub,
		presence:      presence,
		pusher:        pusher,
		pool:          pool,
		metrics:       m,
		now:           time.Now,
		logger:        logger.With("component", "notify"),
		AppName:       "Campus",
	}
}

// Dispatch validates req and queues one background delivery per recipient.
// It never waits for delivery.
func (s *NotificationService) Dispatch(req NotifyRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	for _, recipientID := range withoutUser(append([]string(nil), req.RecipientIDs...), "") {
		recipientID := recipientID
		ok := s.pool.TrySubmit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			defer cancel()
			s.Deliver(ctx, recipientID, req)
		})
		if !ok {
			s.count(metrics.ChannelStore, metrics.OutcomeSkipped)
			s.logger.Warn("notification dropped: queue full",
				"recipient_id", recipientID,
				"type", req.Type,
				"error", domain.ErrDeliveryFailure)
		}
	}
	return nil
}

// NotifyMessage resolves the recipients of a new chat message in the
// background and fans the notification out to them.
func (s *NotificationService) NotifyMessage(cc domain.ChatContext, m *domain.Message) {
	msg := *m
	ok := s.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		req, err := s.messageRequest(ctx, cc, &msg)
		if err != nil {
			s.logger.Warn("resolve message recipients failed",
				"context_id", cc.ID,
				"message_id", msg.ID,
				"error", err)
			return
		}
		if len(req.RecipientIDs) == 0 {
			return
		}
		if err := s.Dispatch(req); err != nil {
			s.logger.Warn("dispatch message notification failed", "message_id", msg.ID, "error", err)
		}
	})
	if !ok {
		s.logger.Warn("message notification dropped: queue full",
			"context_id", cc.ID,
			"message_id", msg.ID,
			"error", domain.ErrDeliveryFailure)
	}
}

func (s *NotificationService) messageRequest(ctx context.Context, cc domain.ChatContext, m *domain.Message) (NotifyRequest, error) {
	policy, err := s.policies.For(cc)
	if err != nil {
		return NotifyRequest{}, err
	}
	recipients, err := policy.Recipients(ctx, cc, m)
	if err != nil {
		return NotifyRequest{}, err
	}
	if len(recipients) == 0 {
		return NotifyRequest{}, nil
	}

	senderName := m.SenderID
	if profs, err := s.profiles.GetByIDs(ctx, []string{m.SenderID}); err == nil {
		if p := profs[m.SenderID]; p != nil && p.DisplayName != "" {
			senderName = p.DisplayName
		}
	}

	text := preview(m.Body)
	if text == "" {
		text = "sent an attachment"
	}
	sender := m.SenderID
	ref := m.ID
	link := "/chat/" + url.PathEscape(cc.ID) + "?message=" + url.QueryEscape(m.ID)
	return NotifyRequest{
		RecipientIDs: recipients,
		SenderID:     &sender,
		Type:         cc.NotificationType(),
		RelatedRef:   &ref,
		DeepLink:     &link,
		Message:      senderName + ": " + text,
	}, nil
}

// Deliver runs the three delivery steps for a single recipient: persist,
// live push when online, then web push to every subscription.
func (s *NotificationService) Deliver(ctx context.Context, recipientID string, req NotifyRequest) *domain.Notification {
	n := &domain.Notification{
		ID:          newID(),
		RecipientID: recipientID,
		SenderID:    req.SenderID,
		Type:        req.Type,
		RelatedRef:  req.RelatedRef,
		DeepLink:    req.DeepLink,
		Message:     req.Message,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		s.count(metrics.ChannelStore, metrics.OutcomeFailed)
		s.logger.Warn("persist notification failed",
			"recipient_id", recipientID,
			"type", req.Type,
			"error", fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err))
	} else {
		s.count(metrics.ChannelStore, metrics.OutcomeOK)
	}

	if s.presence.IsOnline(recipientID) {
		delivered := s.hub.SendToUser(recipientID, domain.Event{Name: domain.EventNotificationCreated, Data: n})
		if delivered > 0 {
			s.count(metrics.ChannelLive, metrics.OutcomeOK)
		} else {
			s.count(metrics.ChannelLive, metrics.OutcomeFailed)
		}
	}

	s.pushAll(ctx, n)
	return n
}

func (s *NotificationService) pushAll(ctx context.Context, n *domain.Notification) {
	subs, err := s.subscriptions.ListForUser(ctx, n.RecipientID)
	if err != nil {
		s.count(metrics.ChannelPush, metrics.OutcomeFailed)
		s.logger.Warn("list push subscriptions failed", "recipient_id", n.RecipientID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{
		ID:         n.ID,
		Type:       n.Type,
		Title:      s.AppName,
		Body:       n.Message,
		DeepLink:   n.DeepLink,
		RelatedRef: n.RelatedRef,
	})
	if err != nil {
		s.logger.Error("encode push payload", "error", err)
		return
	}

	for _, sub := range subs {
		err := s.pusher.Send(ctx, sub, payload)
		switch {
		case err == nil:
			s.count(metrics.ChannelPush, metrics.OutcomeOK)
		case push.IsGone(err):
			s.count(metrics.ChannelPush, metrics.OutcomeGone)
			if err := s.subscriptions.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				s.logger.Warn("remove gone subscription failed", "endpoint", sub.Endpoint, "error", err)
				continue
			}
			if s.metrics != nil {
				s.metrics.PushPruned.Inc()
			}
			s.logger.Info("removed gone push subscription", "recipient_id", n.RecipientID, "endpoint", sub.Endpoint)
		default:
			s.count(metrics.ChannelPush, metrics.OutcomeFailed)
			s.logger.Warn("web push failed",
				"recipient_id", n.RecipientID,
				"endpoint", sub.Endpoint,
				"error", err)
		}
	}
}

func (s *NotificationService) count(channel, outcome string) {
	if s.metrics != nil {
		s.metrics.Notification(channel, outcome)
	}
}

// NotificationPage is one page of a recipient's notifications.
type NotificationPage struct {
	Items    []*domain.Notification `json:"items"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
}

// List returns the recipient's notifications, newest first. page is 1-based.
func (s *NotificationService) List(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*NotificationPage, error) {
	page, pageSize = normalizePage(page, pageSize, defaultNotificationPageSize, maxNotificationPageSize)
	items, err := s.notifications.List(ctx, userID, unreadOnly, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return &NotificationPage{Items: items, Page: page, PageSize: pageSize}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.notifications.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	return s.notifications.Delete(ctx, userID, id)
}

func (s *NotificationService) DeleteAll(ctx context.Context, userID string) (int64, error) {
	return s.notifications.DeleteAll(ctx, userID)
}

// SubscriptionInput is a browser PushSubscription as sent by clients.
type SubscriptionInput struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Subscribe registers or refreshes a push subscription keyed by endpoint.
func (s *NotificationService) Subscribe(ctx context.Context, userID string, in SubscriptionInput) (*domain.PushSubscription, error) {
	u, err := url.Parse(in.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint must be an absolute http(s) url", domain.ErrInvalidArgument)
	}
	if in.Keys.P256dh == "" || in.Keys.Auth == "" {
		return nil, fmt.Errorf("%w: keys.p256dh and keys.auth are required", domain.ErrInvalidArgument)
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	sub := &domain.PushSubscription{
		Endpoint:  in.Endpoint,
		UserID:    userID,
		P256dh:    in.Keys.P256dh,
		Auth:      in.Keys.Auth,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("register subscription: %w", err)
	}
	return sub, nil
}

func (s *NotificationService) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", domain.ErrInvalidArgument)
	}
	return s.subscriptions.DeleteForUser(ctx, userID, endpoint)
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= previewRunes {
		return body
	}
	r := []rune(body)
	return string(r[:previewRunes-1]) + "…"
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func normalizePage(page, pageSize, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = def
	}
	if pageSize > max {
		pageSize = max
	}
	return page, pageSize
}
