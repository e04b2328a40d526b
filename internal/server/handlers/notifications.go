package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/3leaps/gobeacon/pkg/remote"
)

// NotificationSource is the surface the notification endpoints need from
// the delivery engine.
type NotificationSource interface {
	Notifications() []remote.Notification
	UnreadNotifications() []remote.Notification
	UnreadCount() int
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
}

// NotificationsHandler serves the local notification views and relays
// mark-read actions through the engine so local state stays coherent.
type NotificationsHandler struct {
	src NotificationSource
}

// NewNotificationsHandler creates a handler over the given source.
func NewNotificationsHandler(src NotificationSource) *NotificationsHandler {
	return &NotificationsHandler{src: src}
}

// notificationListResponse is the body of GET /notifications.
type notificationListResponse struct {
	Notifications []remote.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	TotalCount    int                   `json:"total_count"`
}

// List serves GET /notifications. With ?unread_only=true only unread
// records are returned.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	var items []remote.Notification
	if r.URL.Query().Get("unread_only") == "true" {
		items = h.src.UnreadNotifications()
	} else {
		items = h.src.Notifications()
	}
	if items == nil {
		items = []remote.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationListResponse{
		Notifications: items,
		UnreadCount:   h.src.UnreadCount(),
		TotalCount:    len(h.src.Notifications()),
	})
}

// UnreadCount serves GET /notifications/unread.
func (h *NotificationsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": h.src.UnreadCount()})
}

// MarkRead serves POST /notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.src.MarkAsRead(r.Context(), id); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead serves POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.src.MarkAllAsRead(r.Context()); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
