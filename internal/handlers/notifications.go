package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/platform/auth"
	"github.com/lumio-market/api/internal/platform/httpx"
	"github.com/lumio-market/api/internal/platform/pagination"
	"github.com/lumio-market/api/internal/services"
)

// NotificationHandlers exposes the user-scoped notification endpoints.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs a new NotificationHandlers instance.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		authn:         authn,
		notifications: notifications,
	}
}

// Routes registers the /notifications endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.Require(auth.RoleUser, auth.RoleAdmin))
	}
	r.Get("/", h.listNotifications)
	r.Post("/read-all", h.markAllRead)
	r.Post("/{notificationID}:read", h.markRead)
	r.Post("/{notificationID}:unread", h.markUnread)
	r.Delete("/{notificationID}", h.deleteNotification)
}

func (h *NotificationHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.NotificationListQuery{
		UserRef:    identity.UserID,
		UnreadOnly: strings.EqualFold(r.URL.Query().Get("unreadOnly"), "true"),
		Page:       domain.PageRequest{Page: params.Page, Limit: params.Limit},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.NotificationStatus(raw)
		query.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		kind := domain.NotificationType(raw)
		query.Type = &kind
	}

	list, err := h.notifications.List(ctx, query)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	items := make([]notificationPayload, 0, len(list.Notifications))
	for _, notification := range list.Notifications {
		items = append(items, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"notifications": items,
		"total":         list.Total,
		"unreadCount":   list.UnreadCount,
		"pagination":    buildPagination(list.Page),
	})
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	h.markReadState(w, r, true)
}

func (h *NotificationHandlers) markUnread(w http.ResponseWriter, r *http.Request) {
	h.markReadState(w, r, false)
}

func (h *NotificationHandlers) markReadState(w http.ResponseWriter, r *http.Request, read bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	notificationID, ok := requireNotificationID(ctx, w, r)
	if !ok {
		return
	}

	cmd := services.NotificationReadCommand{
		NotificationID: notificationID,
		UserRef:        identity.UserID,
	}

	var notification services.Notification
	var err error
	if read {
		notification, err = h.notifications.MarkRead(ctx, cmd)
	} else {
		notification, err = h.notifications.MarkUnread(ctx, cmd)
	}
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"notification": buildNotificationPayload(notification)})
}

func (h *NotificationHandlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	marked, err := h.notifications.MarkAllRead(ctx, identity.UserID)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"marked": marked})
}

func (h *NotificationHandlers) deleteNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	notificationID, ok := requireNotificationID(ctx, w, r)
	if !ok {
		return
	}

	if err := h.notifications.Delete(ctx, services.NotificationReadCommand{
		NotificationID: notificationID,
		UserRef:        identity.UserID,
	}); err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}

func requireNotificationID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return "", false
	}
	return notificationID, true
}

type notificationPayload struct {
	ID        string         `json:"id"`
	OrderRef  string         `json:"orderId,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Status    string         `json:"status"`
	Priority  string         `json:"priority,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	ReadAt    string         `json:"readAt,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

func buildNotificationPayload(notification services.Notification) notificationPayload {
	return notificationPayload{
		ID:        notification.ID,
		OrderRef:  notification.OrderRef,
		Type:      string(notification.Type),
		Title:     notification.Title,
		Message:   notification.Message,
		Status:    string(notification.Status),
		Priority:  notification.Priority,
		Data:      notification.Data,
		ReadAt:    formatTimePtr(notification.ReadAt),
		CreatedAt: formatTime(notification.CreatedAt),
	}
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("notification_error", "failed to process notification request", http.StatusInternalServerError))
	}
}
