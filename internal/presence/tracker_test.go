package presence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus_realtime/internal/domain"
)

type MockLastSeenStore struct {
	mock.Mock
}

func (m *MockLastSeenStore) SaveLastSeen(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *MockLastSeenStore) LoadLastSeen(ctx context.Context, userID string) (*time.Time, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTracker_TwoConnections(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	var events []domain.PresenceChangedData
	tr := NewTracker(testLogger(),
		WithClock(clock.Now),
		WithChangeFunc(func(e domain.PresenceChangedData) { events = append(events, e) }),
	)

	assert.True(t, tr.Connect("alice", "c1"))
	assert.False(t, tr.Connect("alice", "c2"))
	assert.Equal(t, 2, tr.Connections("alice"))

	clock.Advance(time.Minute)
	assert.False(t, tr.Disconnect("alice", "c1"))

	rec, err := tr.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, rec.IsOnline)
	assert.Nil(t, rec.LastSeen)

	clock.Advance(time.Minute)
	second := clock.Now()
	assert.True(t, tr.Disconnect("alice", "c2"))

	rec, err = tr.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, rec.IsOnline)
	require.NotNil(t, rec.LastSeen)
	assert.True(t, second.Equal(*rec.LastSeen))

	require.Len(t, events, 2)
	assert.True(t, events[0].IsOnline)
	assert.False(t, events[1].IsOnline)
	assert.True(t, second.Equal(*events[1].LastSeen))
}

func TestTracker_IdempotentConnectAndUnknownDisconnect(t *testing.T) {
	calls := 0
	tr := NewTracker(testLogger(), WithChangeFunc(func(domain.PresenceChangedData) { calls++ }))

	assert.True(t, tr.Connect("bob", "c1"))
	assert.False(t, tr.Connect("bob", "c1"))
	assert.False(t, tr.Disconnect("bob", "nope"))
	assert.False(t, tr.Disconnect("carol", "c1"))
	assert.True(t, tr.IsOnline("bob"))
	assert.Equal(t, 1, calls)

	assert.True(t, tr.Disconnect("bob", "c1"))
	assert.False(t, tr.Disconnect("bob", "c1"))
	assert.False(t, tr.IsOnline("bob"))
	assert.Equal(t, 2, calls)
}

func TestTracker_PersistsAndLoadsLastSeen(t *testing.T) {
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	store := new(MockLastSeenStore)
	store.On("SaveLastSeen", mock.Anything, "alice", at).Return(nil)
	earlier := at.Add(-time.Hour)
	store.On("LoadLastSeen", mock.Anything, "dave").Return(&earlier, nil)
	store.On("LoadLastSeen", mock.Anything, "erin").Return(nil, nil)

	tr := NewTracker(testLogger(), WithStore(store), WithClock(func() time.Time { return at }))
	tr.Connect("alice", "c1")
	tr.Disconnect("alice", "c1")

	rec, err := tr.Get(context.Background(), "dave")
	require.NoError(t, err)
	assert.False(t, rec.IsOnline)
	require.NotNil(t, rec.LastSeen)
	assert.True(t, earlier.Equal(*rec.LastSeen))

	rec, err = tr.Get(context.Background(), "erin")
	require.NoError(t, err)
	assert.Nil(t, rec.LastSeen)

	store.AssertExpectations(t)
}

func TestTracker_ConcurrentConnections(t *testing.T) {
	tr := NewTracker(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Connect("u", fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Connections("u"))
}
