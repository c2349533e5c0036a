package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/metrics"
	"campus_realtime/internal/presence"
	"campus_realtime/internal/security"
	"campus_realtime/internal/service"
	"campus_realtime/internal/store/sqlite"
	"campus_realtime/internal/typing"
)

const testOrigin = "http://localhost:3000"

type socketEnv struct {
	server   *httptest.Server
	tokens   *security.TokenService
	hub      *Hub
	presence *presence.Tracker
	messages *service.MessageService
}

func newSocketEnv(t *testing.T) *socketEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	profiles := sqlite.NewProfileRepo(db)
	members := sqlite.NewMembershipRepo(db)
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, profiles.Upsert(ctx, &domain.Profile{UserID: id, DisplayName: strings.ToUpper(id[:1]) + id[1:]}))
		require.NoError(t, members.Upsert(ctx, &domain.Membership{ContextID: "subject:math", UserID: id, Role: domain.MemberRoleMember, JoinedAt: time.Now()}))
		require.NoError(t, members.Upsert(ctx, &domain.Membership{ContextID: "dm:7", UserID: id, Role: domain.MemberRoleMember, JoinedAt: time.Now()}))
	}

	logger := testLogger()
	hub := NewHub(metrics.New(nil), logger)
	tracker := presence.NewTracker(logger)
	coordinator := typing.NewCoordinator(2*time.Second, func(contextID string, typists []string) {
		hub.Broadcast(contextID, domain.Event{
			Name: domain.EventTypingChanged,
			Data: domain.TypingChangedData{ContextID: contextID, Typists: typists},
		})
	})
	messages := service.NewMessageService(
		sqlite.NewMessageRepo(db), profiles, members,
		service.DefaultPolicies(members, profiles),
		hub, nil, logger,
	)
	messages.OnMemberRemoved(func(contextID, userID string) {
		hub.LeaveUser(userID, contextID)
		coordinator.StopTyping(contextID, userID)
	})
	tokens := security.NewTokenService("test-secret", time.Hour)

	handler := NewHandler(hub, tokens, tracker, coordinator, messages, HandlerConfig{
		AllowedOrigins: []string{testOrigin},
		PingInterval:   time.Second,
		PongTimeout:    5 * time.Second,
		SendBuffer:     32,
		Rate:           100,
		Burst:          100,
	}, logger)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &socketEnv{server: srv, tokens: tokens, hub: hub, presence: tracker, messages: messages}
}

func (e *socketEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := e.tokens.CreateForUser(userID)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{testOrigin}})
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event, ref string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "ref": ref, "data": data}))
}

// expect reads frames until one named event arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	env := newSocketEnv(t)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{testOrigin}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", http.Header{"Origin": []string{testOrigin}})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_JoinSendAndReceive(t *testing.T) {
	env := newSocketEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, alice, EventJoinRoom, "j1", map[string]string{"contextId": "subject:math"})
	ack := expect(t, alice, domain.EventAck)
	assert.Equal(t, "j1", ack.Ref)
	send(t, bob, EventJoinRoom, "j2", map[string]string{"contextId": "subject:math"})
	expect(t, bob, domain.EventAck)

	assert.True(t, env.presence.IsOnline("alice"))

	send(t, bob, EventStartTyping, "", map[string]string{"contextId": "subject:math"})
	typingFrame := expect(t, alice, domain.EventTypingChanged)
	var typingData domain.TypingChangedData
	require.NoError(t, json.Unmarshal(typingFrame.Data, &typingData))
	assert.Equal(t, []string{"bob"}, typingData.Typists)

	send(t, alice, EventSendMessage, "s1", map[string]string{"contextId": "subject:math", "body": "hello bob"})
	created := expect(t, bob, domain.EventMessageCreated)
	var view struct {
		ID     string         `json:"id"`
		Body   string         `json:"body"`
		Sender domain.Profile `json:"sender"`
	}
	require.NoError(t, json.Unmarshal(created.Data, &view))
	assert.Equal(t, "hello bob", view.Body)
	assert.Equal(t, "Alice", view.Sender.DisplayName)

	sendAck := expect(t, alice, domain.EventAck)
	assert.Equal(t, "s1", sendAck.Ref)

	send(t, bob, EventReact, "r1", map[string]string{"messageId": view.ID, "emoji": "👍"})
	expect(t, alice, domain.EventMessageUpdated)

	send(t, bob, EventMarkRead, "m1", map[string]string{"contextId": "subject:math"})
	read := expect(t, alice, domain.EventReadStateChanged)
	var readData domain.ReadStateChangedData
	require.NoError(t, json.Unmarshal(read.Data, &readData))
	assert.Equal(t, "bob", readData.UserID)
}

func TestHandler_ErrorsKeepSessionOpen(t *testing.T) {
	env := newSocketEnv(t)
	carol := env.dial(t, "carol")

	send(t, carol, EventJoinRoom, "j1", map[string]string{"contextId": "subject:math"})
	f := expect(t, carol, domain.EventError)
	var data domain.ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "j1", f.Ref)
	assert.Equal(t, "forbidden", data.Code)

	send(t, carol, EventStartTyping, "t1", map[string]string{"contextId": "global"})
	f = expect(t, carol, domain.EventError)
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "forbidden", data.Code)

	send(t, carol, "dance", "x1", map[string]string{})
	f = expect(t, carol, domain.EventError)
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "invalid_argument", data.Code)

	send(t, carol, EventJoinRoom, "j2", map[string]string{"contextId": "global"})
	ack := expect(t, carol, domain.EventAck)
	assert.Equal(t, "j2", ack.Ref)
}

func TestHandler_RemovedMemberStopsReceiving(t *testing.T) {
	env := newSocketEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	send(t, alice, EventJoinRoom, "j1", map[string]string{"contextId": "dm:7"})
	expect(t, alice, domain.EventAck)
	send(t, bob, EventJoinRoom, "j2", map[string]string{"contextId": "dm:7"})
	expect(t, bob, domain.EventAck)

	require.NoError(t, env.messages.RemoveMember(context.Background(), "dm:7", "bob"))
	assert.Len(t, env.hub.ConnectionsOf("dm:7"), 1)

	send(t, alice, EventSendMessage, "s1", map[string]string{"contextId": "dm:7", "body": "just us now"})
	ack := expect(t, alice, domain.EventAck)
	assert.Equal(t, "s1", ack.Ref)

	// bob's queue holds anything broadcast before alice's ack
	send(t, bob, EventJoinRoom, "j3", map[string]string{"contextId": "dm:7"})
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, bob.ReadJSON(&f))
		require.NotEqual(t, domain.EventMessageCreated, f.Event)
		if f.Event == domain.EventError {
			var data domain.ErrorData
			require.NoError(t, json.Unmarshal(f.Data, &data))
			assert.Equal(t, "j3", f.Ref)
			assert.Equal(t, "forbidden", data.Code)
			break
		}
	}
}

func TestHandler_DisconnectCleansUp(t *testing.T) {
	env := newSocketEnv(t)
	alice := env.dial(t, "alice")
	send(t, alice, EventJoinRoom, "j1", map[string]string{"contextId": "global"})
	expect(t, alice, domain.EventAck)
	require.True(t, env.presence.IsOnline("alice"))

	require.NoError(t, alice.Close())

	assert.Eventually(t, func() bool {
		return !env.presence.IsOnline("alice") && len(env.hub.ConnectionsOf("global")) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "bearer, abc")
	token, err := ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	token, err = ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	_, err = ExtractToken(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
