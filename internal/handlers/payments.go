package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumio-market/api/internal/payments"
	"github.com/lumio-market/api/internal/platform/auth"
	"github.com/lumio-market/api/internal/platform/httpx"
	"github.com/lumio-market/api/internal/services"
)

type startPaymentRequest struct {
	OrderNumber string `json:"orderNumber"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
}

type capturePaymentRequest struct {
	PayPalOrderID string `json:"paypalOrderId"`
	OrderNumber   string `json:"orderNumber"`
}

// PaymentHandlers exposes the checkout endpoints backed by the payment gateway.
type PaymentHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	environment string
}

// NewPaymentHandlers constructs a new PaymentHandlers instance. The environment
// controls whether provider error details are passed through to clients.
func NewPaymentHandlers(authn *auth.Authenticator, orders services.OrderService, environment string) *PaymentHandlers {
	return &PaymentHandlers{
		authn:       authn,
		orders:      orders,
		environment: strings.ToLower(strings.TrimSpace(environment)),
	}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.Require(auth.RoleUser, auth.RoleAdmin))
	}
	r.Post("/paypal/orders", h.startPayment)
	r.Post("/paypal/capture", h.capturePayment)
}

func (h *PaymentHandlers) startPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req startPaymentRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	approval, err := h.orders.StartPayment(ctx, services.StartPaymentCommand{
		OrderNumber: req.OrderNumber,
		ActorID:     identity.UserID,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"paypalOrderId": approval.ProviderRef,
		"approvalUrl":   approval.ApprovalURL,
		"status":        approval.Status,
	})
}

func (h *PaymentHandlers) capturePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req capturePaymentRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.CapturePayment(ctx, services.CapturePaymentCommand{
		ProviderRef: req.PayPalOrderID,
		OrderNumber: req.OrderNumber,
		ActorID:     identity.UserID,
	})
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order": buildOrderPayload(order),
		"capture": map[string]any{
			"transactionId": order.Payment.TransactionID,
			"status":        string(order.Payment.Status),
			"amount":        order.Pricing.Total,
			"currency":      order.Pricing.Currency,
		},
	})
}

// writePaymentError maps payment-path errors. Provider failure detail is
// passed through only outside production.
func (h *PaymentHandlers) writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, payments.ErrGatewayUnavailable) {
		message := "payment provider unavailable"
		if h.environment != "production" {
			message = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", message, http.StatusInternalServerError))
		return
	}
	writeOrderError(ctx, w, err)
}
