package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/service"

	_ "campus_realtime/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Deps are the collaborators the router serves.
type Deps struct {
	AppName        string
	CORSOrigins    []string
	InternalAPIKey string
	VAPIDPublicKey string

	Tokens        IdentityResolver
	Messages      *service.MessageService
	Notifications *service.NotificationService
	Profiles      domain.ProfileRepository
	Members       domain.MembershipRepository
	Presence      PresenceReader
	Socket        http.Handler
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": d.AppName, "docs": "/docs/index.html"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// WebSocket endpoint; long-lived, so it stays outside the timeout middleware
	if d.Socket != nil {
		r.Handle("/ws", d.Socket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Tokens, d.Logger))

			r.Route("/contexts/{contextID}", func(r chi.Router) {
				r.Get("/messages", handleHistory(d.Messages))
				r.Get("/messages/search", handleSearch(d.Messages))
				r.Get("/pinned", handlePinned(d.Messages))
				r.Get("/unread", handleUnread(d.Messages))
				r.Post("/read", handleMarkRead(d.Messages))
			})
			r.Post("/messages/{messageID}/pin", handleTogglePin(d.Messages))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", handleListNotifications(d.Notifications))
				r.Delete("/", handleDeleteAllNotifications(d.Notifications))
				r.Get("/unread-count", handleNotificationUnreadCount(d.Notifications))
				r.Post("/read-all", handleMarkAllNotificationsRead(d.Notifications))
				r.Post("/{notificationID}/read", handleMarkNotificationRead(d.Notifications))
				r.Delete("/{notificationID}", handleDeleteNotification(d.Notifications))
			})

			r.Route("/push", func(r chi.Router) {
				r.Get("/vapid-public-key", handleVAPIDKey(d.VAPIDPublicKey))
				r.Put("/subscriptions", handleSubscribe(d.Notifications))
				r.Delete("/subscriptions", handleUnsubscribe(d.Notifications))
			})

			r.Get("/presence/{userID}", handleGetPresence(d.Presence))
		})

		r.Route("/internal", func(r chi.Router) {
			r.Use(InternalKeyMiddleware(d.InternalAPIKey))

			r.Post("/notify", handleInternalNotify(d.Notifications))
			r.Put("/profiles/{userID}", handleUpsertProfile(d.Profiles))
			r.Put("/contexts/{contextID}/members/{userID}", handleUpsertMember(d.Members))
			r.Delete("/contexts/{contextID}/members/{userID}", handleDeleteMember(d.Messages))
			r.Delete("/contexts/{contextID}", handlePurgeContext(d.Messages))
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	default:
		slog.Default().Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathParam returns a decoded chi url parameter. Context ids carry a colon
// that clients may percent-encode.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}
