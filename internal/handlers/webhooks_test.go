package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumio-market/api/internal/services"
)

const captureCompletedEvent = `{
	"id": "WH-1",
	"event_type": "PAYMENT.CAPTURE.COMPLETED",
	"create_time": "2024-03-10T12:00:00Z",
	"resource": {
		"id": "TXN-42",
		"supplementary_data": {"related_ids": {"order_id": "PAY-123"}}
	}
}`

func newWebhookRouter(gateway *stubWebhookGateway, orders services.OrderService, environment string) http.Handler {
	r := chi.NewRouter()
	h := NewWebhookHandlers(gateway, orders, environment)
	r.Route("/webhooks", h.Routes)
	return r
}

func TestPaypalWebhookAppliesCaptureEvent(t *testing.T) {
	gateway := &stubWebhookGateway{}
	orders := &stubOrderService{}
	router := newWebhookRouter(gateway, orders, "development")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(captureCompletedEvent))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["received"] != true {
		t.Fatalf("received = %v", body["received"])
	}

	if gateway.verifyReq != nil {
		t.Fatal("signature verification should be skipped outside production")
	}
	if orders.eventCmd == nil {
		t.Fatal("ApplyCaptureEvent was not called")
	}
	if orders.eventCmd.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		t.Fatalf("EventType = %q", orders.eventCmd.EventType)
	}
	if orders.eventCmd.ProviderRef != "PAY-123" {
		t.Fatalf("ProviderRef = %q", orders.eventCmd.ProviderRef)
	}
	if orders.eventCmd.TransactionID != "TXN-42" {
		t.Fatalf("TransactionID = %q", orders.eventCmd.TransactionID)
	}
	want := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	if !orders.eventCmd.OccurredAt.Equal(want) {
		t.Fatalf("OccurredAt = %v, want %v", orders.eventCmd.OccurredAt, want)
	}
}

func TestPaypalWebhookFallsBackToResourceID(t *testing.T) {
	orders := &stubOrderService{}
	router := newWebhookRouter(&stubWebhookGateway{}, orders, "development")

	payload := `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"PAY-456"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if orders.eventCmd == nil || orders.eventCmd.ProviderRef != "PAY-456" {
		t.Fatalf("eventCmd = %+v", orders.eventCmd)
	}
}

func TestPaypalWebhookRejectsInvalidPayload(t *testing.T) {
	orders := &stubOrderService{}
	router := newWebhookRouter(&stubWebhookGateway{}, orders, "development")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if orders.eventCmd != nil {
		t.Fatal("ApplyCaptureEvent should not be called for invalid payloads")
	}
}

func TestPaypalWebhookProductionVerifiesSignature(t *testing.T) {
	gateway := &stubWebhookGateway{verified: true}
	orders := &stubOrderService{}
	router := newWebhookRouter(gateway, orders, "production")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(captureCompletedEvent))
	req.Header.Set("Paypal-Transmission-Id", "tx-1")
	req.Header.Set("Paypal-Transmission-Time", "2024-03-10T12:00:01Z")
	req.Header.Set("Paypal-Transmission-Sig", "sig")
	req.Header.Set("Paypal-Cert-Url", "https://api.paypal.com/cert.pem")
	req.Header.Set("Paypal-Auth-Algo", "SHA256withRSA")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if gateway.verifyReq == nil {
		t.Fatal("signature verification was not invoked")
	}
	if gateway.verifyReq.TransmissionID != "tx-1" || gateway.verifyReq.AuthAlgo != "SHA256withRSA" {
		t.Fatalf("verifyReq = %+v", gateway.verifyReq)
	}
	if len(gateway.verifyReq.Body) == 0 {
		t.Fatal("verification body is empty")
	}
	if orders.eventCmd == nil {
		t.Fatal("ApplyCaptureEvent was not called after successful verification")
	}
}

func TestPaypalWebhookProductionRejectsInvalidSignature(t *testing.T) {
	gateway := &stubWebhookGateway{verified: false}
	orders := &stubOrderService{}
	router := newWebhookRouter(gateway, orders, "production")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(captureCompletedEvent))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "webhook_invalid_signature" {
		t.Fatalf("error = %v", body["error"])
	}
	if orders.eventCmd != nil {
		t.Fatal("ApplyCaptureEvent should not be called when the signature is invalid")
	}
}

func TestPaypalWebhookVerificationErrorIsServerError(t *testing.T) {
	gateway := &stubWebhookGateway{verifyErr: errors.New("verification api down")}
	router := newWebhookRouter(gateway, &stubOrderService{}, "production")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(captureCompletedEvent))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestPaypalWebhookApplyFailureIsServerError(t *testing.T) {
	orders := &stubOrderService{err: errors.New("datastore unavailable")}
	router := newWebhookRouter(&stubWebhookGateway{}, orders, "development")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(captureCompletedEvent))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "webhook_error" {
		t.Fatalf("error = %v", body["error"])
	}
}
