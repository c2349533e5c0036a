package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/metrics"
	"campus_realtime/internal/presence"
	"campus_realtime/internal/security"
	"campus_realtime/internal/service"
	"campus_realtime/internal/store/sqlite"
	"campus_realtime/internal/workerpool"
	"campus_realtime/internal/ws"
)

const internalKey = "internal-test-key"

type apiEnv struct {
	handler  http.Handler
	tokens   *security.TokenService
	messages *service.MessageService
	hub      *ws.Hub
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	profiles := sqlite.NewProfileRepo(db)
	members := sqlite.NewMembershipRepo(db)
	hub := ws.NewHub(m, logger)
	tracker := presence.NewTracker(logger)
	policies := service.DefaultPolicies(members, profiles)

	pool := workerpool.New(2, 16, logger)
	t.Cleanup(pool.Shutdown)

	notifications := service.NewNotificationService(
		sqlite.NewNotificationRepo(db), sqlite.NewSubscriptionRepo(db), profiles,
		policies, hub, tracker, nil, pool, m, logger,
	)
	messages := service.NewMessageService(
		sqlite.NewMessageRepo(db), profiles, members, policies, hub, notifications, logger,
	)
	messages.OnMemberRemoved(func(contextID, userID string) { hub.LeaveUser(userID, contextID) })
	tokens := security.NewTokenService("test-secret", time.Hour)

	h := NewRouter(Deps{
		AppName:        "campus realtime",
		CORSOrigins:    []string{"http://localhost:3000"},
		InternalAPIKey: internalKey,
		Tokens:         tokens,
		Messages:       messages,
		Notifications:  notifications,
		Profiles:       profiles,
		Members:        members,
		Presence:       tracker,
		Gatherer:       reg,
		Logger:         logger,
	})
	return &apiEnv{handler: h, tokens: tokens, messages: messages, hub: hub}
}

func (e *apiEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := e.tokens.CreateForUser(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if strings.HasPrefix(path, "/api/internal/") {
		req.Header.Set("X-Internal-Key", internalKey)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed registers alice and a teacher as members of subject:math via the
// internal ingress.
func (e *apiEnv) seed(t *testing.T) {
	t.Helper()
	for id, p := range map[string]profileRequest{
		"alice": {DisplayName: "Alice"},
		"prof":  {DisplayName: "Prof", Role: domain.RoleTeacher},
	} {
		rec := e.do(t, http.MethodPut, "/api/internal/profiles/"+id, "", p)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = e.do(t, http.MethodPut, "/api/internal/contexts/subject:math/members/"+id, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "realtime_connections")
}

func TestRouter_RequiresAuth(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/internal/notify", strings.NewReader(`{}`))
	req.Header.Set("X-Internal-Key", "wrong")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_HistoryAndReadState(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		_, err := env.messages.Send(ctx, "prof", service.SendInput{ContextID: "subject:math", Body: body})
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodGet, "/api/contexts/subject:math/messages?pageSize=2", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[struct {
		Items []struct {
			Body string `json:"body"`
		} `json:"items"`
		NextCursor string `json:"nextCursor"`
		HasMore    bool   `json:"hasMore"`
	}](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "two", page.Items[0].Body)
	assert.Equal(t, "three", page.Items[1].Body)
	assert.True(t, page.HasMore)

	rec = env.do(t, http.MethodGet, "/api/contexts/subject%3Amath/messages?before="+page.NextCursor, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	older := decode[service.HistoryPage](t, rec)
	require.Len(t, older.Items, 1)
	assert.Equal(t, "one", older.Items[0].Body)
	assert.False(t, older.HasMore)

	rec = env.do(t, http.MethodGet, "/api/contexts/subject:math/unread", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[service.UnreadState](t, rec).Count)

	rec = env.do(t, http.MethodPost, "/api/contexts/subject:math/read", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), decode[markReadResponse](t, rec).Marked)

	rec = env.do(t, http.MethodGet, "/api/contexts/subject:math/unread", "alice", nil)
	assert.Equal(t, 0, decode[service.UnreadState](t, rec).Count)

	rec = env.do(t, http.MethodGet, "/api/contexts/subject:math/messages/search?q=THR", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestRouter_ErrorMapping(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t)

	rec := env.do(t, http.MethodGet, "/api/contexts/subject:math/messages", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/contexts/lobby/messages", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/contexts/subject:math/messages/search?q=%20", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/messages/missing/pin", "prof", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/notifications/missing/read", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PinModeratorOnly(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t)
	view, err := env.messages.Send(context.Background(), "alice", service.SendInput{ContextID: "subject:math", Body: "pin me"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/messages/"+view.ID+"/pin", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/messages/"+view.ID+"/pin", "prof", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/contexts/subject:math/pinned", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pinned := decode[[]map[string]any](t, rec)
	require.Len(t, pinned, 1)
	assert.Equal(t, view.ID, pinned[0]["id"])
}

func TestRouter_NotificationLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/internal/notify", "", service.NotifyRequest{
		RecipientIDs: []string{"alice", "alice"},
		Type:         "assignment",
		Message:      "Homework 3 is due Friday",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var page service.NotificationPage
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/notifications", "alice", nil)
		page = decode[service.NotificationPage](t, rec)
		return len(page.Items) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "assignment", page.Items[0].Type)

	rec = env.do(t, http.MethodGet, "/api/notifications/unread-count", "alice", nil)
	assert.Equal(t, int64(1), decode[countResponse](t, rec).Count)

	rec = env.do(t, http.MethodPost, "/api/notifications/"+page.Items[0].ID+"/read", "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/notifications?unread=true", "alice", nil)
	assert.Empty(t, decode[service.NotificationPage](t, rec).Items)

	rec = env.do(t, http.MethodDelete, "/api/notifications/"+page.Items[0].ID, "prof", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot delete")

	rec = env.do(t, http.MethodDelete, "/api/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[countResponse](t, rec).Count)

	rec = env.do(t, http.MethodPost, "/api/internal/notify", "", map[string]any{"recipientIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_PushSubscriptions(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/push/vapid-public-key", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var in service.SubscriptionInput
	in.Endpoint = "https://push.example/sub/1"
	in.Keys.P256dh = "p256"
	in.Keys.Auth = "auth"
	rec = env.do(t, http.MethodPut, "/api/push/subscriptions", "alice", in)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice", decode[domain.PushSubscription](t, rec).UserID)

	in.Endpoint = "not a url"
	rec = env.do(t, http.MethodPut, "/api/push/subscriptions", "alice", in)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/push/subscriptions", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_PresenceAndPurge(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t)
	_, err := env.messages.Send(context.Background(), "alice", service.SendInput{ContextID: "subject:math", Body: "bye"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/presence/alice", "prof", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rp := decode[domain.PresenceRecord](t, rec)
	assert.Equal(t, "alice", rp.UserID)
	assert.False(t, rp.IsOnline)

	rec = env.do(t, http.MethodDelete, "/api/internal/contexts/global", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/internal/contexts/subject:math", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/contexts/subject:math/messages", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "memberships are gone with the context")
}

func TestRouter_RemoveMemberUnsubscribes(t *testing.T) {
	env := newAPIEnv(t)
	env.seed(t)
	c := ws.NewClient("alice", nil, 8, slog.New(slog.NewTextHandler(io.Discard, nil)))
	env.hub.Register(c)
	require.True(t, env.hub.Join(c, "subject:math"))

	rec := env.do(t, http.MethodDelete, "/api/internal/contexts/subject:math/members/alice", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.False(t, env.hub.IsJoined(c, "subject:math"))

	rec = env.do(t, http.MethodDelete, "/api/internal/contexts/subject:math/members/alice", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/contexts/subject:math/messages", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
