package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/plutov/paypal/v4"
)

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

type paypalOrderAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, payer *paypal.PaymentSource, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, captureOrderRequest paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
	GetOrder(ctx context.Context, orderID string) (*paypal.Order, error)
}

type paypalRefundAPI interface {
	RefundCapture(ctx context.Context, captureID string, refundCaptureRequest paypal.RefundCaptureRequest) (*paypal.RefundResponse, error)
}

type paypalWebhookAPI interface {
	VerifyWebhookSignature(ctx context.Context, httpReq *http.Request, webhookID string) (*paypal.VerifyWebhookResponse, error)
}

type paypalClients struct {
	orders   paypalOrderAPI
	refunds  paypalRefundAPI
	webhooks paypalWebhookAPI
}

// PayPalConfig configures the PayPalGateway.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	HTTPClient   *http.Client
	Logger       Logger
	Clock        func() time.Time
	Clients      *paypalClients
}

// PayPalGateway implements the Gateway interface on the PayPal REST v2 SDK.
// Client-credentials token acquisition and refresh live inside the SDK client.
type PayPalGateway struct {
	api       paypalClients
	webhookID string
	logger    Logger
	clock     func() time.Time
}

var _ Gateway = (*PayPalGateway)(nil)

// NewPayPalGateway constructs a PayPal Gateway using the given configuration.
func NewPayPalGateway(cfg PayPalConfig) (*PayPalGateway, error) {
	var clients paypalClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
		if baseURL == "" {
			return nil, errors.New("paypal: base url is required")
		}
		clientID := strings.TrimSpace(cfg.ClientID)
		clientSecret := strings.TrimSpace(cfg.ClientSecret)
		if clientID == "" || clientSecret == "" {
			return nil, errors.New("paypal: client credentials are required")
		}

		sdk, err := paypal.NewClient(clientID, clientSecret, baseURL)
		if err != nil {
			return nil, fmt.Errorf("paypal: build client: %w", err)
		}
		if cfg.HTTPClient != nil {
			sdk.Client = cfg.HTTPClient
		}
		clients = paypalClients{orders: sdk, refunds: sdk, webhooks: sdk}
	}

	if clients.orders == nil || clients.refunds == nil || clients.webhooks == nil {
		return nil, errors.New("paypal: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &PayPalGateway{
		api:       clients,
		webhookID: strings.TrimSpace(cfg.WebhookID),
		logger:    logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// CreateOrder opens a provider order with intent CAPTURE and returns the
// approval link the customer is redirected to.
func (g *PayPalGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	if g == nil {
		return CreateOrderResult{}, errors.New("paypal: gateway is nil")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return CreateOrderResult{}, errors.New("paypal: currency is required")
	}

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.OrderID,
		CustomID:    req.OrderNumber,
		Description: req.Description,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: currency,
			Value:    FormatAmount(req.Total),
			Breakdown: &paypal.PurchaseUnitAmountBreakdown{
				ItemTotal: &paypal.Money{Currency: currency, Value: FormatAmount(req.Subtotal)},
				TaxTotal:  &paypal.Money{Currency: currency, Value: FormatAmount(req.Tax)},
			},
		},
	}}
	appContext := &paypal.ApplicationContext{
		ReturnURL: strings.TrimSpace(req.ReturnURL),
		CancelURL: strings.TrimSpace(req.CancelURL),
	}

	order, err := g.api.orders.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appContext)
	if err != nil {
		declined, gatewayErr := translatePayPalError(err)
		if gatewayErr != nil {
			return CreateOrderResult{}, gatewayErr
		}
		g.logger(ctx, "payments.paypal.order.declined", map[string]any{
			"orderId": req.OrderID,
			"code":    declined.Code,
		})
		return CreateOrderResult{Success: false, Declined: declined}, nil
	}

	approvalURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}

	g.logger(ctx, "payments.paypal.order.created", map[string]any{
		"orderId":     req.OrderID,
		"providerRef": order.ID,
		"status":      order.Status,
	})

	return CreateOrderResult{
		Success:     true,
		ProviderRef: order.ID,
		ApprovalURL: approvalURL,
		Status:      order.Status,
	}, nil
}

// CaptureOrder captures an approved provider order.
func (g *PayPalGateway) CaptureOrder(ctx context.Context, providerRef string) (CaptureResult, error) {
	if g == nil {
		return CaptureResult{}, errors.New("paypal: gateway is nil")
	}
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return CaptureResult{}, errors.New("paypal: provider ref is required")
	}

	resp, err := g.api.orders.CaptureOrder(ctx, providerRef, paypal.CaptureOrderRequest{})
	if err != nil {
		declined, gatewayErr := translatePayPalError(err)
		if gatewayErr != nil {
			return CaptureResult{}, gatewayErr
		}
		g.logger(ctx, "payments.paypal.capture.declined", map[string]any{
			"providerRef": providerRef,
			"code":        declined.Code,
		})
		return CaptureResult{Success: false, ProviderRef: providerRef, Declined: declined}, nil
	}

	result := CaptureResult{
		Success:     true,
		ProviderRef: resp.ID,
		Status:      resp.Status,
	}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments == nil || len(unit.Payments.Captures) == 0 {
			continue
		}
		capture := unit.Payments.Captures[0]
		result.TransactionID = capture.ID
		if capture.Amount != nil {
			if minor, err := ParseAmount(capture.Amount.Value); err == nil {
				result.Amount = minor
			}
			result.Currency = capture.Amount.Currency
		}
		break
	}
	now := g.clock()
	result.CapturedAt = &now

	g.logger(ctx, "payments.paypal.capture.completed", map[string]any{
		"providerRef":   resp.ID,
		"transactionId": result.TransactionID,
		"status":        resp.Status,
	})
	return result, nil
}

// RefundPayment refunds a captured transaction, optionally for a partial amount.
func (g *PayPalGateway) RefundPayment(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if g == nil {
		return RefundResult{}, errors.New("paypal: gateway is nil")
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return RefundResult{}, errors.New("paypal: transaction id is required")
	}

	refundReq := paypal.RefundCaptureRequest{}
	if req.Amount != nil {
		refundReq.Amount = &paypal.Money{
			Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
			Value:    FormatAmount(*req.Amount),
		}
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		refundReq.NoteToPayer = reason
	}

	resp, err := g.api.refunds.RefundCapture(ctx, transactionID, refundReq)
	if err != nil {
		declined, gatewayErr := translatePayPalError(err)
		if gatewayErr != nil {
			return RefundResult{}, gatewayErr
		}
		g.logger(ctx, "payments.paypal.refund.declined", map[string]any{
			"transactionId": transactionID,
			"code":          declined.Code,
		})
		return RefundResult{Success: false, Declined: declined}, nil
	}

	now := g.clock()
	result := RefundResult{
		Success:    true,
		RefundID:   resp.ID,
		Status:     resp.Status,
		RefundedAt: &now,
	}

	g.logger(ctx, "payments.paypal.refund.completed", map[string]any{
		"transactionId": transactionID,
		"refundId":      resp.ID,
		"status":        resp.Status,
	})
	return result, nil
}

// GetOrderDetails retrieves the provider order for reconciliation.
func (g *PayPalGateway) GetOrderDetails(ctx context.Context, providerRef string) (OrderDetails, error) {
	if g == nil {
		return OrderDetails{}, errors.New("paypal: gateway is nil")
	}
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return OrderDetails{}, errors.New("paypal: provider ref is required")
	}

	order, err := g.api.orders.GetOrder(ctx, providerRef)
	if err != nil {
		declined, gatewayErr := translatePayPalError(err)
		if gatewayErr != nil {
			return OrderDetails{}, gatewayErr
		}
		return OrderDetails{}, fmt.Errorf("paypal: lookup order %s: %s", providerRef, declined.Code)
	}

	details := OrderDetails{
		ProviderRef: order.ID,
		Status:      order.Status,
	}
	for _, unit := range order.PurchaseUnits {
		if unit.Amount != nil && details.Amount == 0 {
			if minor, err := ParseAmount(unit.Amount.Value); err == nil {
				details.Amount = minor
			}
			details.Currency = unit.Amount.Currency
		}
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 && details.TransactionID == "" {
			details.TransactionID = unit.Payments.Captures[0].ID
		}
	}
	return details, nil
}

// VerifyWebhookSignature verifies a webhook delivery against PayPal's verify API.
func (g *PayPalGateway) VerifyWebhookSignature(ctx context.Context, req WebhookVerification) (bool, error) {
	if g == nil {
		return false, errors.New("paypal: gateway is nil")
	}
	if g.webhookID == "" {
		return false, errors.New("paypal: webhook id is not configured")
	}
	if req.TransmissionID == "" || req.TransmissionSig == "" || req.CertURL == "" {
		return false, nil
	}

	// The SDK reads the transmission headers and event body off a request, so
	// the already-consumed delivery is reassembled for it.
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(req.Body))
	if err != nil {
		return false, fmt.Errorf("paypal: build verification request: %w", err)
	}
	httpReq.Header.Set("Paypal-Transmission-Id", req.TransmissionID)
	httpReq.Header.Set("Paypal-Transmission-Time", req.TransmissionTime)
	httpReq.Header.Set("Paypal-Transmission-Sig", req.TransmissionSig)
	httpReq.Header.Set("Paypal-Cert-Url", req.CertURL)
	httpReq.Header.Set("Paypal-Auth-Algo", req.AuthAlgo)

	resp, err := g.api.webhooks.VerifyWebhookSignature(ctx, httpReq, g.webhookID)
	if err != nil {
		declined, gatewayErr := translatePayPalError(err)
		if gatewayErr != nil {
			return false, gatewayErr
		}
		g.logger(ctx, "payments.paypal.webhook.verify_rejected", map[string]any{
			"code": declined.Code,
		})
		return false, nil
	}
	return resp.VerificationStatus == "SUCCESS", nil
}

// translatePayPalError splits SDK errors into business declines and gateway
// failures. A nil error with a non-nil Decline means the provider rejected the
// request for business reasons.
func translatePayPalError(err error) (*Decline, error) {
	var apiErr *paypal.ErrorResponse
	if !errors.As(err, &apiErr) {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	statusCode := 0
	if apiErr.Response != nil {
		statusCode = apiErr.Response.StatusCode
	}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, statusCode)
	case statusCode >= 400 && statusCode < 500:
		return declineFromError(apiErr), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
}

func declineFromError(apiErr *paypal.ErrorResponse) *Decline {
	code := apiErr.Name
	message := apiErr.Message
	if len(apiErr.Details) > 0 {
		if apiErr.Details[0].Issue != "" {
			code = apiErr.Details[0].Issue
		}
		if apiErr.Details[0].Description != "" {
			message = apiErr.Details[0].Description
		}
	}
	if code == "" {
		code = "DECLINED"
	}
	return &Decline{Code: code, Message: message}
}
