package httpserver

import (
	"net/http"
	"strings"
	"time"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/service"
)

// Routes under /api/internal are called by the portal backend, not browsers.

type profileRequest struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Role        string `json:"role"`
}

type memberRequest struct {
	Role string `json:"role"`
}

// @Summary      Notify users
// @Description  Queue a notification for fan-out to each recipient
// @Tags         internal
// @Accept       json
// @Produce      json
// @Param        X-Internal-Key  header  string                 true  "Shared key"
// @Param        input           body    service.NotifyRequest  true  "Notification"
// @Success      202
// @Failure      400  {object}  map[string]string
// @Router       /internal/notify [post]
func handleInternalNotify(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.NotifyRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := notifSvc.Dispatch(req); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// @Summary      Upsert profile
// @Tags         internal
// @Accept       json
// @Produce      json
// @Param        X-Internal-Key  header  string          true  "Shared key"
// @Param        userID          path    string          true  "User id"
// @Param        input           body    profileRequest  true  "Profile"
// @Success      200  {object}  domain.Profile
// @Failure      400  {object}  map[string]string
// @Router       /internal/profiles/{userID} [put]
func handleUpsertProfile(profiles domain.ProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		p := &domain.Profile{
			UserID:      pathParam(r, "userID"),
			DisplayName: strings.TrimSpace(req.DisplayName),
			AvatarURL:   req.AvatarURL,
			Role:        req.Role,
		}
		if p.UserID == "" || p.DisplayName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "displayName is required"})
			return
		}
		if err := profiles.Upsert(r.Context(), p); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// @Summary      Add or update context member
// @Tags         internal
// @Accept       json
// @Produce      json
// @Param        X-Internal-Key  header  string         true   "Shared key"
// @Param        contextID       path    string         true   "Context id"
// @Param        userID          path    string         true   "User id"
// @Param        input           body    memberRequest  false  "Membership role"
// @Success      200  {object}  domain.Membership
// @Failure      400  {object}  map[string]string
// @Router       /internal/contexts/{contextID}/members/{userID} [put]
func handleUpsertMember(members domain.MembershipRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cc, err := domain.ParseContextID(pathParam(r, "contextID"))
		if err != nil {
			writeError(w, err)
			return
		}
		var req memberRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
				return
			}
		}
		switch req.Role {
		case "":
			req.Role = domain.MemberRoleMember
		case domain.MemberRoleMember, domain.MemberRoleModerator:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be member or moderator"})
			return
		}
		m := &domain.Membership{
			ContextID: cc.ID,
			UserID:    pathParam(r, "userID"),
			Role:      req.Role,
			JoinedAt:  time.Now().UTC().Truncate(time.Microsecond),
		}
		if err := members.Upsert(r.Context(), m); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// @Summary      Remove context member
// @Description  Revoke a membership and unsubscribe the user's live connections from the context
// @Tags         internal
// @Param        X-Internal-Key  header  string  true  "Shared key"
// @Param        contextID       path    string  true  "Context id"
// @Param        userID          path    string  true  "User id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /internal/contexts/{contextID}/members/{userID} [delete]
func handleDeleteMember(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := msgSvc.RemoveMember(r.Context(), pathParam(r, "contextID"), pathParam(r, "userID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Purge context
// @Description  Remove every message, read marker and membership of a deleted room, conversation or subject
// @Tags         internal
// @Param        X-Internal-Key  header  string  true  "Shared key"
// @Param        contextID       path    string  true  "Context id"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Router       /internal/contexts/{contextID} [delete]
func handlePurgeContext(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := msgSvc.PurgeContext(r.Context(), pathParam(r, "contextID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
