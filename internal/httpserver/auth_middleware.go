package httpserver

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// IdentityResolver maps a bearer token onto a user id.
type IdentityResolver interface {
	Resolve(token string) (string, error)
}

// WithUserID returns a new context carrying the current user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// CurrentUserID extracts the current user id from context, if any.
func CurrentUserID(r *http.Request) string {
	if v, ok := r.Context().Value(userContextKey).(string); ok {
		return v
	}
	return ""
}

// AuthMiddleware validates the Bearer token and attaches the user id to the context.
func AuthMiddleware(tokens IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid Authorization header"})
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			userID, err := tokens.Resolve(tokenStr)
			if err != nil {
				logger.Debug("auth: token rejected", "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// InternalKeyMiddleware guards the domain-event ingress with a shared key
// sent in X-Internal-Key.
func InternalKeyMiddleware(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("X-Internal-Key"))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid internal key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
