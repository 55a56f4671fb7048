package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrGatewayUnavailable is returned when the provider cannot be reached or
// rejects our credentials. Business declines are not errors; they surface as
// results with Success set to false.
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// CreateOrderRequest describes a provider order to open for an internal order.
type CreateOrderRequest struct {
	OrderID     string
	OrderNumber string
	Description string
	Subtotal    int64
	Tax         int64
	Total       int64
	Currency    string
	ReturnURL   string
	CancelURL   string
}

// CreateOrderResult carries the provider order reference and the approval link
// the customer is redirected to.
type CreateOrderResult struct {
	Success     bool
	ProviderRef string
	ApprovalURL string
	Status      string
	Declined    *Decline
}

// CaptureResult reports the outcome of capturing an approved provider order.
type CaptureResult struct {
	Success       bool
	ProviderRef   string
	TransactionID string
	Status        string
	Amount        int64
	Currency      string
	CapturedAt    *time.Time
	Declined      *Decline
}

// RefundRequest describes a refund against a captured transaction.
type RefundRequest struct {
	TransactionID string
	Amount        *int64
	Currency      string
	Reason        string
}

// RefundResult reports the outcome of a refund attempt.
type RefundResult struct {
	Success    bool
	RefundID   string
	Status     string
	RefundedAt *time.Time
	Declined   *Decline
}

// OrderDetails normalises the provider's view of an order for reconciliation.
type OrderDetails struct {
	ProviderRef   string
	Status        string
	TransactionID string
	Amount        int64
	Currency      string
}

// Decline captures why the provider rejected an otherwise well-formed request.
type Decline struct {
	Code    string
	Message string
}

// WebhookVerification carries the headers and body needed to verify a
// provider webhook signature.
type WebhookVerification struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
	Body             []byte
}

// Gateway defines the contract payment provider adapters implement.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	CaptureOrder(ctx context.Context, providerRef string) (CaptureResult, error)
	RefundPayment(ctx context.Context, req RefundRequest) (RefundResult, error)
	GetOrderDetails(ctx context.Context, providerRef string) (OrderDetails, error)
	VerifyWebhookSignature(ctx context.Context, req WebhookVerification) (bool, error)
}

// FormatAmount renders a minor-unit amount as the provider's decimal string
// with exactly two fraction digits.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParseAmount converts the provider's decimal string back to minor units.
func ParseAmount(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("payments: empty amount")
	}

	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = value[1:]
	}

	whole := value
	frac := "00"
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole = value[:idx]
		frac = value[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		frac = frac[:2]
	}

	var minor int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("payments: invalid amount %q", value)
		}
		minor = minor*10 + int64(r-'0')
	}
	minor *= 100
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("payments: invalid amount %q", value)
		}
	}
	minor += int64(frac[0]-'0')*10 + int64(frac[1]-'0')

	if negative {
		minor = -minor
	}
	return minor, nil
}
