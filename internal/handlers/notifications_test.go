package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/services"
)

func newNotificationRouter(svc services.NotificationService) http.Handler {
	r := chi.NewRouter()
	r.Use(withTestIdentity("user-1", "user"))
	h := NewNotificationHandlers(nil, svc)
	r.Route("/notifications", h.Routes)
	return r
}

func sampleNotification() services.Notification {
	return services.Notification{
		ID:        "notif_1",
		UserRef:   "user-1",
		OrderRef:  "ord_1",
		Type:      domain.NotificationPaymentProcessed,
		Title:     "Payment Processed",
		Message:   "Your payment of $165.00 for order ORD-12345678ABCD has been processed.",
		Status:    domain.NotificationUnread,
		Priority:  "high",
		CreatedAt: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestListNotificationsEnvelope(t *testing.T) {
	svc := &stubNotificationService{
		list: services.NotificationList{
			Notifications: []services.Notification{sampleNotification(), sampleNotification()},
			Total:         5,
			UnreadCount:   3,
			Page:          domain.PageInfo{Page: 1, Limit: 2, Total: 5, TotalPages: 3},
		},
	}
	router := newNotificationRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/notifications?page=1&limit=2&unreadOnly=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	items, ok := body["notifications"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("notifications = %v", body["notifications"])
	}
	if body["total"] != float64(5) || body["unreadCount"] != float64(3) {
		t.Fatalf("totals = %v / %v", body["total"], body["unreadCount"])
	}
	pageInfo, _ := body["pagination"].(map[string]any)
	if pageInfo["totalPages"] != float64(3) {
		t.Fatalf("pagination = %v", pageInfo)
	}

	first, _ := items[0].(map[string]any)
	if first["type"] != "payment_processed" || first["status"] != "unread" {
		t.Fatalf("first notification = %v", first)
	}
	if first["createdAt"] != "2024-03-10T12:00:00Z" {
		t.Fatalf("createdAt = %v", first["createdAt"])
	}
}

func TestMarkReadPassesOwner(t *testing.T) {
	read := sampleNotification()
	read.Status = domain.NotificationRead
	readAt := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)
	read.ReadAt = &readAt

	svc := &stubNotificationService{notification: read}
	router := newNotificationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/notifications/notif_1:read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if svc.readCmd == nil {
		t.Fatal("MarkRead was not called")
	}
	if svc.readCmd.NotificationID != "notif_1" || svc.readCmd.UserRef != "user-1" {
		t.Fatalf("readCmd = %+v", svc.readCmd)
	}
	body := decodeBody(t, rec)
	payload, _ := body["notification"].(map[string]any)
	if payload["readAt"] != "2024-03-11T09:00:00Z" {
		t.Fatalf("readAt = %v", payload["readAt"])
	}
}

func TestMarkUnreadOmitsReadAt(t *testing.T) {
	svc := &stubNotificationService{notification: sampleNotification()}
	router := newNotificationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/notifications/notif_1:unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if svc.unreadCmd == nil || svc.unreadCmd.NotificationID != "notif_1" {
		t.Fatalf("unreadCmd = %+v", svc.unreadCmd)
	}
	body := decodeBody(t, rec)
	payload, _ := body["notification"].(map[string]any)
	if _, present := payload["readAt"]; present {
		t.Fatalf("readAt should be omitted for unread notifications: %v", payload)
	}
}

func TestMarkAllReadReportsCount(t *testing.T) {
	svc := &stubNotificationService{marked: 4}
	router := newNotificationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/notifications/read-all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["marked"] != float64(4) {
		t.Fatalf("marked = %v", body["marked"])
	}
}

func TestDeleteNotificationReturnsNoContent(t *testing.T) {
	svc := &stubNotificationService{}
	router := newNotificationRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/notifications/notif_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if svc.deleteCmd == nil || svc.deleteCmd.NotificationID != "notif_1" || svc.deleteCmd.UserRef != "user-1" {
		t.Fatalf("deleteCmd = %+v", svc.deleteCmd)
	}
}

func TestNotificationNotFoundMapsTo404(t *testing.T) {
	svc := &stubNotificationService{err: services.ErrNotificationNotFound}
	router := newNotificationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/notifications/notif_missing:read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "notification_not_found" {
		t.Fatalf("error = %v", body["error"])
	}
}
