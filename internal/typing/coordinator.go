package typing

import (
	"context"
	"sort"
	"sync"
	"time"
)

const minSweepInterval = 50 * time.Millisecond

// ChangeFunc receives the full live typist set of a context whenever it
// changes. It is called with the coordinator lock held and must not block.
type ChangeFunc func(contextID string, typists []string)

// Coordinator tracks who is typing in each context. Entries expire after a
// fixed window unless refreshed.
type Coordinator struct {
	mu       sync.Mutex
	rooms    map[string]map[string]time.Time
	window   time.Duration
	now      func() time.Time
	onChange ChangeFunc
}

func NewCoordinator(window time.Duration, onChange ChangeFunc) *Coordinator {
	return &Coordinator{
		rooms:    make(map[string]map[string]time.Time),
		window:   window,
		now:      time.Now,
		onChange: onChange,
	}
}

// SetClock overrides time.Now. Used by tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// SetChangeFunc replaces the change listener.
func (c *Coordinator) SetChangeFunc(fn ChangeFunc) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// StartTyping inserts or refreshes userID in contextID. Refreshing an entry
// that is still live does not broadcast.
func (c *Coordinator) StartTyping(contextID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	room := c.rooms[contextID]
	if room == nil {
		room = make(map[string]time.Time)
		c.rooms[contextID] = room
	}
	exp, ok := room[userID]
	live := ok && exp.After(now)
	room[userID] = now.Add(c.window)
	if !live {
		c.emitLocked(contextID, now)
	}
}

// StopTyping removes userID from contextID immediately.
func (c *Coordinator) StopTyping(contextID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.rooms[contextID]
	if _, ok := room[userID]; !ok {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(c.rooms, contextID)
	}
	c.emitLocked(contextID, c.now())
}

// CurrentTypers returns the live typists of contextID, sorted, leaving out
// exclude when it is non-empty.
func (c *Coordinator) CurrentTypers(contextID, exclude string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(contextID, exclude, c.now())
}

// RemoveContext drops all typing state of contextID without broadcasting.
func (c *Coordinator) RemoveContext(contextID string) {
	c.mu.Lock()
	delete(c.rooms, contextID)
	c.mu.Unlock()
}

// Sweep removes expired entries and broadcasts the new set of every context
// that lost a typist.
func (c *Coordinator) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for contextID, room := range c.rooms {
		changed := false
		for userID, exp := range room {
			if !exp.After(now) {
				delete(room, userID)
				changed = true
			}
		}
		if len(room) == 0 {
			delete(c.rooms, contextID)
		}
		if changed {
			c.emitLocked(contextID, now)
		}
	}
}

// Run sweeps periodically until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	interval := c.window / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Coordinator) liveLocked(contextID, exclude string, now time.Time) []string {
	out := []string{}
	for userID, exp := range c.rooms[contextID] {
		if userID == exclude || !exp.After(now) {
			continue
		}
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) emitLocked(contextID string, now time.Time) {
	if c.onChange == nil {
		return
	}
	c.onChange(contextID, c.liveLocked(contextID, "", now))
}
