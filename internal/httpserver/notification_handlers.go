package httpserver

import (
	"net/http"
	"strconv"

	"campus_realtime/internal/service"
)

type countResponse struct {
	Count int64 `json:"count"`
}

// @Summary      List notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        page      query  int   false  "Page number (1-based)"
// @Param        pageSize  query  int   false  "Page size (max 100)"
// @Param        unread    query  bool  false  "Only unread notifications"
// @Success      200  {object}  service.NotificationPage
// @Router       /notifications [get]
func handleListNotifications(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
		page, err := notifSvc.List(r.Context(), CurrentUserID(r), queryInt(r, "page"), queryInt(r, "pageSize"), unread)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// @Summary      Unread notification count
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  countResponse
// @Router       /notifications/unread-count [get]
func handleNotificationUnreadCount(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := notifSvc.UnreadCount(r.Context(), CurrentUserID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: int64(n)})
	}
}

// @Summary      Mark notification read
// @Tags         notifications
// @Security     BearerAuth
// @Param        notificationID  path  string  true  "Notification id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /notifications/{notificationID}/read [post]
func handleMarkNotificationRead(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := notifSvc.MarkRead(r.Context(), CurrentUserID(r), pathParam(r, "notificationID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Mark all notifications read
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  countResponse
// @Router       /notifications/read-all [post]
func handleMarkAllNotificationsRead(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := notifSvc.MarkAllRead(r.Context(), CurrentUserID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

// @Summary      Delete notification
// @Tags         notifications
// @Security     BearerAuth
// @Param        notificationID  path  string  true  "Notification id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /notifications/{notificationID} [delete]
func handleDeleteNotification(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := notifSvc.Delete(r.Context(), CurrentUserID(r), pathParam(r, "notificationID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Delete all notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  countResponse
// @Router       /notifications [delete]
func handleDeleteAllNotifications(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := notifSvc.DeleteAll(r.Context(), CurrentUserID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

// @Summary      VAPID public key
// @Description  Application server key for PushManager.subscribe
// @Tags         push
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /push/vapid-public-key [get]
func handleVAPIDKey(publicKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if publicKey == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "web push is not configured"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"publicKey": publicKey})
	}
}

// @Summary      Register push subscription
// @Tags         push
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input  body  service.SubscriptionInput  true  "Browser PushSubscription"
// @Success      200  {object}  domain.PushSubscription
// @Failure      400  {object}  map[string]string
// @Router       /push/subscriptions [put]
func handleSubscribe(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.SubscriptionInput
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		sub, err := notifSvc.Subscribe(r.Context(), CurrentUserID(r), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// @Summary      Remove push subscription
// @Tags         push
// @Security     BearerAuth
// @Param        endpoint  query  string  true  "Subscription endpoint"
// @Success      204
// @Router       /push/subscriptions [delete]
func handleUnsubscribe(notifSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := notifSvc.Unsubscribe(r.Context(), CurrentUserID(r), r.URL.Query().Get("endpoint")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
