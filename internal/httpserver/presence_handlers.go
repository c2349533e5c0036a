package httpserver

import (
	"context"
	"net/http"

	"campus_realtime/internal/domain"
)

// PresenceReader reports the presence of a single user.
type PresenceReader interface {
	Get(ctx context.Context, userID string) (domain.PresenceRecord, error)
}

// @Summary      User presence
// @Tags         presence
// @Security     BearerAuth
// @Produce      json
// @Param        userID  path  string  true  "User id"
// @Success      200  {object}  domain.PresenceRecord
// @Router       /presence/{userID} [get]
func handleGetPresence(tracker PresenceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := tracker.Get(r.Context(), pathParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
