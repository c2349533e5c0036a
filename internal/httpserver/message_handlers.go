package httpserver

import (
	"net/http"
	"strconv"

	"campus_realtime/internal/service"
)

type markReadResponse struct {
	ContextID string `json:"contextId"`
	Marked    int64  `json:"marked"`
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// @Summary      Message history
// @Description  Page through a context's messages, oldest first within a page
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        contextID  path   string  true   "Context id, e.g. subject:42"
// @Param        page       query  int     false  "Page number (1-based)"
// @Param        pageSize   query  int     false  "Page size (max 100)"
// @Param        before     query  string  false  "Cursor from a previous page"
// @Param        anchor     query  string  false  "Anchor returned with page 1, keeps later pages stable"
// @Success      200  {object}  service.HistoryPage
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /contexts/{contextID}/messages [get]
func handleHistory(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := msgSvc.History(r.Context(), CurrentUserID(r), pathParam(r, "contextID"), service.HistoryQuery{
			Page:     queryInt(r, "page"),
			PageSize: queryInt(r, "pageSize"),
			Before:   r.URL.Query().Get("before"),
			Anchor:   r.URL.Query().Get("anchor"),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// @Summary      Search messages
// @Description  Case-insensitive search over message bodies and sender names
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        contextID  path   string  true  "Context id"
// @Param        q          query  string  true  "Search text"
// @Success      200  {array}   domain.MessageView
// @Failure      400  {object}  map[string]string
// @Router       /contexts/{contextID}/messages/search [get]
func handleSearch(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := msgSvc.Search(r.Context(), CurrentUserID(r), pathParam(r, "contextID"), r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// @Summary      Pinned messages
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        contextID  path   string  true   "Context id"
// @Param        limit      query  int     false  "Maximum number of messages"
// @Success      200  {array}   domain.MessageView
// @Router       /contexts/{contextID}/pinned [get]
func handlePinned(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := msgSvc.Pinned(r.Context(), CurrentUserID(r), pathParam(r, "contextID"), queryInt(r, "limit"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// @Summary      Toggle pin
// @Description  Pin or unpin a message. Moderators only.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        messageID  path  string  true  "Message id"
// @Success      200  {object}  domain.MessageView
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /messages/{messageID}/pin [post]
func handleTogglePin(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := msgSvc.TogglePin(r.Context(), CurrentUserID(r), pathParam(r, "messageID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// @Summary      Unread count
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        contextID  path  string  true  "Context id"
// @Success      200  {object}  service.UnreadState
// @Router       /contexts/{contextID}/unread [get]
func handleUnread(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := msgSvc.Unread(r.Context(), CurrentUserID(r), pathParam(r, "contextID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// @Summary      Mark context read
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        contextID  path  string  true  "Context id"
// @Success      200  {object}  markReadResponse
// @Router       /contexts/{contextID}/read [post]
func handleMarkRead(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contextID := pathParam(r, "contextID")
		n, err := msgSvc.MarkRead(r.Context(), CurrentUserID(r), contextID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, markReadResponse{ContextID: contextID, Marked: n})
	}
}
