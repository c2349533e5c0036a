package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one live socket of an authenticated user. Outbound frames go
// through a bounded queue drained by writePump so a slow reader never blocks
// a broadcaster.
type Client struct {
	id        string
	userID    string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	lastSeen  atomic.Int64
	logger    *slog.Logger
}

// NewClient wraps conn. conn may be nil for clients that never touch the
// network, e.g. in router tests.
func NewClient(userID string, conn *websocket.Conn, buffer int, logger *slog.Logger) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	c.touch()
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() string {
	return c.userID
}

// Enqueue queues a frame without blocking. It reports false when the client
// is closed or its queue is full; the frame is dropped in that case.
func (c *Client) Enqueue(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// LastActive is the time of the last frame or pong received.
func (c *Client) LastActive() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// writePump drains the send queue and pings every interval. Any write
// failure closes the client, which ends the read loop as well.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("ws write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ws ping failed", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}
