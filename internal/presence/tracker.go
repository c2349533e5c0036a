package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"campus_realtime/internal/domain"
)

const persistTimeout = 3 * time.Second

// ChangeFunc receives presence transitions. It is called with the tracker
// lock held, so it must not block or call back into the tracker.
type ChangeFunc func(domain.PresenceChangedData)

type userState struct {
	conns    map[string]struct{}
	lastSeen *time.Time
}

// Tracker counts live connections per user. A user is online while at least
// one connection is registered; last-seen is stamped only when the final
// connection goes away.
type Tracker struct {
	mu       sync.Mutex
	users    map[string]*userState
	store    domain.LastSeenStore
	onChange ChangeFunc
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Tracker)

// WithStore persists last-seen instants.
func WithStore(store domain.LastSeenStore) Option {
	return func(t *Tracker) { t.store = store }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithChangeFunc sets the transition listener.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(t *Tracker) { t.onChange = fn }
}

func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		users:  make(map[string]*userState),
		now:    time.Now,
		logger: logger.With("component", "presence"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetChangeFunc replaces the transition listener.
func (t *Tracker) SetChangeFunc(fn ChangeFunc) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Connect registers connID for userID. It reports true when the user went
// from offline to online.
func (t *Tracker) Connect(userID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.users[userID]
	if st == nil {
		st = &userState{}
		t.users[userID] = st
	}
	if st.conns == nil {
		st.conns = make(map[string]struct{})
	}
	if _, ok := st.conns[connID]; ok {
		return false
	}
	st.conns[connID] = struct{}{}
	if len(st.conns) != 1 {
		return false
	}

	t.logger.Debug("user online", "user_id", userID)
	if t.onChange != nil {
		t.onChange(domain.PresenceChangedData{UserID: userID, IsOnline: true, LastSeen: st.lastSeen})
	}
	return true
}

// Disconnect removes connID. It reports true when that was the last
// connection of the user, in which case last-seen is set to now.
func (t *Tracker) Disconnect(userID, connID string) bool {
	t.mu.Lock()

	st := t.users[userID]
	if st == nil {
		t.mu.Unlock()
		return false
	}
	if _, ok := st.conns[connID]; !ok {
		t.mu.Unlock()
		return false
	}
	delete(st.conns, connID)
	if len(st.conns) > 0 {
		t.mu.Unlock()
		return false
	}

	at := t.now().UTC()
	st.lastSeen = &at
	st.conns = nil
	if t.onChange != nil {
		t.onChange(domain.PresenceChangedData{UserID: userID, IsOnline: false, LastSeen: &at})
	}
	t.mu.Unlock()

	t.logger.Debug("user offline", "user_id", userID, "last_seen", at)
	t.persist(userID, at)
	return true
}

func (t *Tracker) persist(userID string, at time.Time) {
	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := t.store.SaveLastSeen(ctx, userID, at); err != nil {
		t.logger.Warn("persist last seen failed", "user_id", userID, "error", err)
	}
}

// IsOnline reports whether userID holds at least one connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.users[userID]
	return st != nil && len(st.conns) > 0
}

// Connections returns the number of live connections of userID.
func (t *Tracker) Connections(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st := t.users[userID]; st != nil {
		return len(st.conns)
	}
	return 0
}

// Get returns the presence record of userID, falling back to the last-seen
// store for users not seen by this process.
func (t *Tracker) Get(ctx context.Context, userID string) (domain.PresenceRecord, error) {
	t.mu.Lock()
	st := t.users[userID]
	if st != nil && (len(st.conns) > 0 || st.lastSeen != nil) {
		rec := domain.PresenceRecord{
			UserID:      userID,
			IsOnline:    len(st.conns) > 0,
			Connections: len(st.conns),
			LastSeen:    st.lastSeen,
		}
		t.mu.Unlock()
		return rec, nil
	}
	t.mu.Unlock()

	rec := domain.PresenceRecord{UserID: userID}
	if t.store == nil {
		return rec, nil
	}
	at, err := t.store.LoadLastSeen(ctx, userID)
	if err != nil {
		return rec, err
	}
	rec.LastSeen = at
	return rec, nil
}
