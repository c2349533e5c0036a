package ws

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatChecker closes clients that have been silent for longer than the
// timeout. Closing a client ends its read loop, which runs the normal
// disconnect path.
type HeartbeatChecker struct {
	hub           *Hub
	timeout       time.Duration
	checkInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

func NewHeartbeatChecker(hub *Hub, timeout, checkInterval time.Duration, logger *slog.Logger) *HeartbeatChecker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if checkInterval <= 0 {
		checkInterval = timeout / 2
	}
	return &HeartbeatChecker{
		hub:           hub,
		timeout:       timeout,
		checkInterval: checkInterval,
		now:           time.Now,
		logger:        logger.With("component", "heartbeat"),
	}
}

// Start blocks until ctx is cancelled.
func (h *HeartbeatChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.logger.Info("heartbeat checker started", "timeout", h.timeout, "check_interval", h.checkInterval)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat checker stopped")
			return
		case <-ticker.C:
			h.Check()
		}
	}
}

// Check closes every client whose last activity is older than the timeout
// and returns how many were closed.
func (h *HeartbeatChecker) Check() int {
	now := h.now()
	closed := 0
	for _, c := range h.hub.Clients() {
		lastActive := c.LastActive()
		if now.Sub(lastActive) <= h.timeout {
			continue
		}
		closed++
		h.logger.Debug("connection heartbeat timeout",
			"conn_id", c.ID(),
			"user_id", c.UserID(),
			"last_active", lastActive)
		c.Close()
	}
	if closed > 0 {
		h.logger.Info("heartbeat check completed", "total", len(h.hub.Clients()), "timeout", closed)
	}
	return closed
}
