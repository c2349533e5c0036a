package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/workerpool"
)

type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepo) List(ctx context.Context, recipientID string, unreadOnly bool, offset, limit int) ([]*domain.Notification, error) {
	args := m.Called(ctx, recipientID, unreadOnly, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationRepo) MarkRead(ctx context.Context, recipientID, id string) error {
	args := m.Called(ctx, recipientID, id)
	return args.Error(0)
}

func (m *MockNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepo) Delete(ctx context.Context, recipientID, id string) error {
	args := m.Called(ctx, recipientID, id)
	return args.Error(0)
}

func (m *MockNotificationRepo) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepo) PurgeReadBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil // not used by the service
}

type MockSubscriptionRepo struct {
	mock.Mock
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, s *domain.PushSubscription) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) ListForUser(ctx context.Context, userID string) ([]*domain.PushSubscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PushSubscription), args.Error(1)
}

func (m *MockSubscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) DeleteForUser(ctx context.Context, userID, endpoint string) error {
	args := m.Called(ctx, userID, endpoint)
	return args.Error(0)
}

type MockProfileRepo struct {
	mock.Mock
}

func (m *MockProfileRepo) Upsert(ctx context.Context, p *domain.Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProfileRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.Profile), args.Error(1)
}

func (m *MockProfileRepo) FindByDisplayNames(ctx context.Context, names []string) ([]*domain.Profile, error) {
	args := m.Called(ctx, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Profile), args.Error(1)
}

type MockMembershipRepo struct {
	mock.Mock
}

func (m *MockMembershipRepo) Upsert(ctx context.Context, mb *domain.Membership) error {
	args := m.Called(ctx, mb)
	return args.Error(0)
}

func (m *MockMembershipRepo) Delete(ctx context.Context, contextID, userID string) error {
	args := m.Called(ctx, contextID, userID)
	return args.Error(0)
}

func (m *MockMembershipRepo) Get(ctx context.Context, contextID, userID string) (*domain.Membership, error) {
	args := m.Called(ctx, contextID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}

func (m *MockMembershipRepo) ListMembers(ctx context.Context, contextID string) ([]*domain.Membership, error) {
	args := m.Called(ctx, contextID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Membership), args.Error(1)
}

func (m *MockMembershipRepo) PurgeContext(ctx context.Context, contextID string) error {
	args := m.Called(ctx, contextID)
	return args.Error(0)
}

type sentEvent struct {
	target string
	event  domain.Event
}

// fakeHub records published events. SendToUser reaches a user only when the
// user is marked online.
type fakeHub struct {
	mu        sync.Mutex
	broadcast []sentEvent
	direct    []sentEvent
	online    map[string]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{online: make(map[string]bool)}
}

func (h *fakeHub) Broadcast(contextID string, ev domain.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast = append(h.broadcast, sentEvent{target: contextID, event: ev})
	return 1
}

func (h *fakeHub) SendToUser(userID string, ev domain.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.direct = append(h.direct, sentEvent{target: userID, event: ev})
	if h.online[userID] {
		return 1
	}
	return 0
}

func (h *fakeHub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online[userID]
}

func (h *fakeHub) setOnline(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online[userID] = true
}

func (h *fakeHub) broadcasts() []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sentEvent(nil), h.broadcast...)
}

func (h *fakeHub) directs() []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sentEvent(nil), h.direct...)
}

func (h *fakeHub) eventNames() []string {
	var out []string
	for _, e := range h.broadcasts() {
		out = append(out, e.event.Name)
	}
	return out
}

// inlineDispatcher runs tasks on the calling goroutine, or rejects them all
// when full is set.
type inlineDispatcher struct {
	full bool
}

func (d inlineDispatcher) TrySubmit(task workerpool.Task) bool {
	if d.full {
		return false
	}
	task()
	return true
}

// fakePusher fails endpoints listed in errs and records every attempt.
type fakePusher struct {
	mu   sync.Mutex
	errs map[string]error
	sent []string
}

func (p *fakePusher) Send(_ context.Context, sub *domain.PushSubscription, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sub.Endpoint)
	return p.errs[sub.Endpoint]
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []*domain.Message
}

func (n *recordingNotifier) NotifyMessage(_ domain.ChatContext, m *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}
