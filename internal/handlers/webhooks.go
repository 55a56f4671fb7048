package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumio-market/api/internal/payments"
	"github.com/lumio-market/api/internal/platform/httpx"
	"github.com/lumio-market/api/internal/platform/requestctx"
	"github.com/lumio-market/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// paypalWebhookEvent is the slice of the provider's event envelope the order
// core consumes.
type paypalWebhookEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// WebhookHandlers receives provider callbacks and reconciles them against
// order state.
type WebhookHandlers struct {
	gateway     payments.Gateway
	orders      services.OrderService
	environment string
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(gateway payments.Gateway, orders services.OrderService, environment string) *WebhookHandlers {
	return &WebhookHandlers{
		gateway:     gateway,
		orders:      orders,
		environment: strings.ToLower(strings.TrimSpace(environment)),
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/paypal", h.paypalWebhook)
}

func (h *WebhookHandlers) paypalWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read webhook body", http.StatusBadRequest))
		return
	}

	verified, err := h.verifySignature(r, body)
	if err != nil {
		logger.Error("paypal webhook verification failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("webhook_verification_error", "unable to verify webhook signature", http.StatusInternalServerError))
		return
	}
	if !verified {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_invalid_signature", "webhook signature invalid", http.StatusBadRequest))
		return
	}

	var event paypalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid webhook payload", http.StatusBadRequest))
		return
	}

	providerRef := strings.TrimSpace(event.Resource.SupplementaryData.RelatedIDs.OrderID)
	if providerRef == "" {
		providerRef = strings.TrimSpace(event.Resource.ID)
	}

	var occurredAt time.Time
	if raw := strings.TrimSpace(event.CreateTime); raw != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
			occurredAt = parsed.UTC()
		}
	}

	if err := h.orders.ApplyCaptureEvent(ctx, services.CaptureEventCommand{
		EventType:     strings.TrimSpace(event.EventType),
		ProviderRef:   providerRef,
		TransactionID: strings.TrimSpace(event.Resource.ID),
		OccurredAt:    occurredAt,
	}); err != nil {
		logger.Error("paypal webhook apply failed",
			zap.String("eventId", event.ID),
			zap.String("eventType", event.EventType),
			zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to apply webhook event", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}

// verifySignature checks the transmission headers against the provider's
// verification API. Outside production the check is skipped and logged so
// sandbox events without valid signatures can flow.
func (h *WebhookHandlers) verifySignature(r *http.Request, body []byte) (bool, error) {
	ctx := r.Context()
	if h.environment != "production" {
		requestctx.Logger(ctx).Info("paypal webhook signature check skipped",
			zap.String("environment", h.environment))
		return true, nil
	}

	return h.gateway.VerifyWebhookSignature(ctx, payments.WebhookVerification{
		TransmissionID:   r.Header.Get("Paypal-Transmission-Id"),
		TransmissionTime: r.Header.Get("Paypal-Transmission-Time"),
		TransmissionSig:  r.Header.Get("Paypal-Transmission-Sig"),
		CertURL:          r.Header.Get("Paypal-Cert-Url"),
		AuthAlgo:         r.Header.Get("Paypal-Auth-Algo"),
		Body:             body,
	})
}
