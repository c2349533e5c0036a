package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/service"
)

const (
	maxFrameBytes = 64 << 10
	opTimeout     = 10 * time.Second
)

// Inbound socket event names.
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventSendMessage   = "send-message"
	EventStartTyping   = "start-typing"
	EventStopTyping    = "stop-typing"
	EventReact         = "react"
	EventUnreact       = "unreact"
	EventEditMessage   = "edit-message"
	EventDeleteMessage = "delete-message"
	EventMarkRead      = "mark-read"
	EventTogglePin     = "toggle-pin"
)

var errRateLimited = errors.New("too many events, slow down")

// IdentityResolver maps a bearer token onto a user id.
type IdentityResolver interface {
	Resolve(token string) (string, error)
}

// PresenceTracker is notified of every connection that opens or closes.
type PresenceTracker interface {
	Connect(userID, connID string) bool
	Disconnect(userID, connID string) bool
}

// TypingCoordinator records typing activity per context.
type TypingCoordinator interface {
	StartTyping(contextID, userID string)
	StopTyping(contextID, userID string)
	CurrentTypers(contextID, exclude string) []string
}

// HandlerConfig tunes the socket endpoint.
type HandlerConfig struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendBuffer     int
	Rate           float64
	Burst          int
}

// Handler serves the /ws endpoint: it authenticates, registers the
// connection with the hub and the presence tracker, and dispatches inbound
// events to the message engine.
type Handler struct {
	hub      *Hub
	tokens   IdentityResolver
	presence PresenceTracker
	typing   TypingCoordinator
	messages *service.MessageService
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	origin   func(r *http.Request) bool
	logger   *slog.Logger
}

func NewHandler(
	hub *Hub,
	tokens IdentityResolver,
	presence PresenceTracker,
	typing TypingCoordinator,
	messages *service.MessageService,
	cfg HandlerConfig,
	logger *slog.Logger,
) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	checkOrigin := makeCheckOrigin(cfg.AllowedOrigins)
	return &Handler{
		hub:      hub,
		tokens:   tokens,
		presence: presence,
		typing:   typing,
		messages: messages,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:  checkOrigin,
			Subprotocols: []string{"bearer"},
		},
		origin: checkOrigin,
		logger: logger.With("component", "ws"),
	}
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}
	if _, ok := allowed["*"]; ok {
		return func(r *http.Request) bool {
			return true
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// ExtractToken reads the bearer token from the Authorization header, the
// "bearer, <token>" websocket subprotocol pair or the token query parameter.
func ExtractToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.origin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	token, err := ExtractToken(r)
	if err != nil {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	userID, err := h.tokens.Resolve(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := NewClient(userID, conn, h.cfg.SendBuffer, h.logger)
	h.hub.Register(c)
	h.presence.Connect(userID, c.id)
	h.logger.Debug("ws connected", "conn_id", c.id, "user_id", userID)

	go c.writePump(h.cfg.PingInterval)
	h.readLoop(c)

	left := h.hub.Unregister(c)
	h.presence.Disconnect(userID, c.id)
	c.Close()
	h.logger.Debug("ws disconnected", "conn_id", c.id, "user_id", userID, "rooms", len(left))
}

type inboundFrame struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (h *Handler) readLoop(c *Client) {
	conn := c.conn
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		c.touch()
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(h.cfg.Rate), h.cfg.Burst)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		c.touch()
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.replyError(c, "", fmt.Errorf("%w: malformed frame", domain.ErrInvalidArgument))
			continue
		}
		if !limiter.Allow() {
			h.replyError(c, frame.Ref, errRateLimited)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		result, err := h.dispatch(ctx, c, frame)
		cancel()
		if err != nil {
			h.replyError(c, frame.Ref, err)
			continue
		}
		if frame.Ref != "" {
			h.hub.SendTo(c, domain.Event{Name: domain.EventAck, Ref: frame.Ref, Data: result})
		}
	}
}

type contextRequest struct {
	ContextID string `json:"contextId"`
}

type messageRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji,omitempty"`
	Body      string `json:"body,omitempty"`
}

type joinResult struct {
	ContextID string   `json:"contextId"`
	Typists   []string `json:"typists"`
}

func (h *Handler) dispatch(ctx context.Context, c *Client, frame inboundFrame) (any, error) {
	userID := c.userID
	switch frame.Event {
	case EventJoinRoom:
		var req contextRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		cc, err := h.messages.Authorize(ctx, userID, req.ContextID)
		if err != nil {
			return nil, err
		}
		h.hub.Join(c, cc.ID)
		return joinResult{ContextID: cc.ID, Typists: h.typing.CurrentTypers(cc.ID, userID)}, nil

	case EventLeaveRoom:
		var req contextRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		h.hub.Leave(c, req.ContextID)
		return contextRequest{ContextID: req.ContextID}, nil

	case EventSendMessage:
		var in service.SendInput
		if err := decode(frame.Data, &in); err != nil {
			return nil, err
		}
		view, err := h.messages.Send(ctx, userID, in)
		if err != nil {
			return nil, err
		}
		h.typing.StopTyping(view.ContextID, userID)
		return view, nil

	case EventStartTyping, EventStopTyping:
		var req contextRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		if !h.hub.IsJoined(c, req.ContextID) {
			return nil, fmt.Errorf("%w: join the room first", domain.ErrForbidden)
		}
		if frame.Event == EventStartTyping {
			h.typing.StartTyping(req.ContextID, userID)
		} else {
			h.typing.StopTyping(req.ContextID, userID)
		}
		return nil, nil

	case EventReact, EventUnreact:
		var req messageRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		if frame.Event == EventReact {
			return h.messages.React(ctx, userID, req.MessageID, req.Emoji)
		}
		return h.messages.Unreact(ctx, userID, req.MessageID, req.Emoji)

	case EventEditMessage:
		var req messageRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		return h.messages.Edit(ctx, userID, req.MessageID, req.Body)

	case EventDeleteMessage:
		var req messageRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := h.messages.Delete(ctx, userID, req.MessageID); err != nil {
			return nil, err
		}
		return messageRequest{MessageID: req.MessageID}, nil

	case EventMarkRead:
		var req contextRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		n, err := h.messages.MarkRead(ctx, userID, req.ContextID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"contextId": req.ContextID, "marked": n}, nil

	case EventTogglePin:
		var req messageRequest
		if err := decode(frame.Data, &req); err != nil {
			return nil, err
		}
		return h.messages.TogglePin(ctx, userID, req.MessageID)

	default:
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidArgument, frame.Event)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: data is required", domain.ErrInvalidArgument)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed data: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// replyError reports err on the socket. The session stays open.
func (h *Handler) replyError(c *Client, ref string, err error) {
	code := domain.ErrorCode(err)
	msg := err.Error()
	switch {
	case errors.Is(err, errRateLimited):
		code = "rate_limited"
	case code == "internal":
		h.logger.Error("ws event failed", "conn_id", c.id, "user_id", c.userID, "error", err)
		msg = "internal error"
	}
	h.hub.SendTo(c, domain.Event{
		Name: domain.EventError,
		Ref:  ref,
		Data: domain.ErrorData{Code: code, Message: msg},
	})
}
