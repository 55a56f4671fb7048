package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/services"
)

func TestHealthzReportsUptime(t *testing.T) {
	base := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	now := base
	h := NewHealthHandlers(nil, WithHealthClock(func() time.Time { return now }))
	now = base.Add(90 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != domain.HealthStatusOK {
		t.Fatalf("status = %v", body["status"])
	}
	if body["uptime"] != "1m30s" {
		t.Fatalf("uptime = %v", body["uptime"])
	}
}

func TestReadyzWithoutSystemServiceIsLivenessOnly(t *testing.T) {
	h := NewHealthHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzReportsChecks(t *testing.T) {
	system := &stubSystemService{
		report: services.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
				"paypal":    {Status: domain.HealthStatusDegraded, Latency: 900 * time.Millisecond, Detail: "slow responses"},
			},
		},
	}
	h := NewHealthHandlers(system)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	checks, _ := body["checks"].(map[string]any)
	paypal, _ := checks["paypal"].(map[string]any)
	if paypal["status"] != domain.HealthStatusDegraded || paypal["detail"] != "slow responses" {
		t.Fatalf("paypal check = %v", paypal)
	}
}

func TestReadyzErrorReportIs503(t *testing.T) {
	system := &stubSystemService{
		report: services.SystemHealthReport{
			Status: domain.HealthStatusError,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
			},
		},
	}
	h := NewHealthHandlers(system)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != domain.HealthStatusError {
		t.Fatalf("status = %v", body["status"])
	}
}

func TestReadyzProbeFailureIs503(t *testing.T) {
	system := &stubSystemService{err: errors.New("probe failed")}
	h := NewHealthHandlers(system)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
