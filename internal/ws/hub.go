package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/metrics"
)

// Hub is the room router. It tracks every live client, the chat contexts
// each client has joined, and the clients of each user. Deliveries never
// block: a closed client or a full queue drops the frame and the heartbeat
// removes the client later.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}
	users   map[string]map[*Client]struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]map[string]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		users:   make(map[string]map[*Client]struct{}),
		metrics: m,
		logger:  logger.With("component", "ws"),
	}
}

// Register adds a client for its user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = make(map[string]struct{})
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*Client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
	h.updateGaugesLocked()
}

// Unregister removes the client from every context it joined and from its
// user. It returns the contexts the client was in.
func (h *Hub) Unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(joined))
	for contextID := range joined {
		h.leaveLocked(c, contextID)
		left = append(left, contextID)
	}
	delete(h.clients, c)
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}
	h.updateGaugesLocked()
	return left
}

// Join subscribes c to contextID. Joining twice is a no-op; it reports
// whether the subscription is new. Unregistered clients cannot join.
func (h *Hub) Join(c *Client, contextID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	if _, ok := joined[contextID]; ok {
		return false
	}
	joined[contextID] = struct{}{}
	if h.rooms[contextID] == nil {
		h.rooms[contextID] = make(map[*Client]struct{})
	}
	h.rooms[contextID][c] = struct{}{}
	h.updateGaugesLocked()
	return true
}

// Leave unsubscribes c from contextID.
func (h *Hub) Leave(c *Client, contextID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	if _, ok := joined[contextID]; !ok {
		return false
	}
	h.leaveLocked(c, contextID)
	h.updateGaugesLocked()
	return true
}

func (h *Hub) leaveLocked(c *Client, contextID string) {
	delete(h.clients[c], contextID)
	if room, ok := h.rooms[contextID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, contextID)
		}
	}
}

// IsJoined reports whether c is subscribed to contextID.
func (h *Hub) IsJoined(c *Client, contextID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[c][contextID]
	return ok
}

// ConnectionsOf returns the clients subscribed to contextID.
func (h *Hub) ConnectionsOf(contextID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[contextID]
	out := make([]*Client, 0, len(room))
	for c := range room {
		out = append(out, c)
	}
	return out
}

// UserConnections returns the number of clients registered for userID.
func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Broadcast sends ev to every client in contextID and returns the number of
// clients the frame was queued for.
func (h *Hub) Broadcast(contextID string, ev domain.Event) int {
	data, ok := h.encode(ev)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.deliverLocked(h.rooms[contextID], data, ev.Name)
}

// SendToUser sends ev to every client of userID regardless of joined rooms.
func (h *Hub) SendToUser(userID string, ev domain.Event) int {
	data, ok := h.encode(ev)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.deliverLocked(h.users[userID], data, ev.Name)
}

// BroadcastAll sends ev to every registered client.
func (h *Hub) BroadcastAll(ev domain.Event) int {
	data, ok := h.encode(ev)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if h.enqueue(c, data) {
			n++
		}
	}
	h.countBroadcast(ev.Name, n)
	return n
}

// SendTo sends ev to a single client.
func (h *Hub) SendTo(c *Client, ev domain.Event) bool {
	data, ok := h.encode(ev)
	if !ok {
		return false
	}
	return h.enqueue(c, data)
}

// EvictContext unsubscribes every client from contextID and returns them.
func (h *Hub) EvictContext(contextID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[contextID]
	out := make([]*Client, 0, len(room))
	for c := range room {
		delete(h.clients[c], contextID)
		out = append(out, c)
	}
	delete(h.rooms, contextID)
	h.updateGaugesLocked()
	return out
}

// LeaveUser unsubscribes every client of userID from contextID and
// returns how many were removed.
func (h *Hub) LeaveUser(userID, contextID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for c := range h.users[userID] {
		if _, ok := h.clients[c][contextID]; ok {
			h.leaveLocked(c, contextID)
			n++
		}
	}
	if n > 0 {
		h.updateGaugesLocked()
	}
	return n
}

// Clients returns a snapshot of every registered client.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) deliverLocked(set map[*Client]struct{}, data []byte, name string) int {
	n := 0
	for c := range set {
		if h.enqueue(c, data) {
			n++
		}
	}
	h.countBroadcast(name, n)
	return n
}

func (h *Hub) enqueue(c *Client, data []byte) bool {
	if c.Enqueue(data) {
		return true
	}
	if h.metrics != nil {
		h.metrics.DroppedDeliveries.Inc()
	}
	h.logger.Debug("delivery dropped", "conn_id", c.id, "user_id", c.userID)
	return false
}

func (h *Hub) encode(ev domain.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", "event", ev.Name, "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) countBroadcast(name string, n int) {
	if h.metrics != nil && n > 0 {
		h.metrics.EventsBroadcast.WithLabelValues(name).Add(float64(n))
	}
}

func (h *Hub) updateGaugesLocked() {
	if h.metrics == nil {
		return
	}
	h.metrics.Connections.Set(float64(len(h.clients)))
	h.metrics.Rooms.Set(float64(len(h.rooms)))
}
