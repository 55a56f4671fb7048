package services

import (
	"context"
	"time"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	Timeline           = domain.Timeline
	CustomerSnapshot   = domain.CustomerSnapshot
	ServiceSnapshot    = domain.ServiceSnapshot
	Notification       = domain.Notification
	NotificationType   = domain.NotificationType
	NotificationStatus = domain.NotificationStatus
	Service            = domain.Service
	UserProfile        = domain.UserProfile
	PageRequest        = domain.PageRequest
	PageInfo           = domain.PageInfo
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService encapsulates the order lifecycle: creation, payment capture,
// status advancement, cancellation, refunds, and the embedded sub-collections.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, query GetOrderQuery) (Order, error)
	List(ctx context.Context, query OrderListQuery) (domain.OffsetPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Assign(ctx context.Context, cmd AssignOrderCommand) (Order, error)
	StartPayment(ctx context.Context, cmd StartPaymentCommand) (PaymentApproval, error)
	CapturePayment(ctx context.Context, cmd CapturePaymentCommand) (Order, error)
	Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error)
	AddNote(ctx context.Context, cmd AddOrderNoteCommand) (Order, error)
	AddAttachment(ctx context.Context, cmd AddAttachmentCommand) (Order, error)
	RequestRevision(ctx context.Context, cmd RequestRevisionCommand) (Order, error)
	SubmitFeedback(ctx context.Context, cmd SubmitFeedbackCommand) (Order, error)
	ApplyCaptureEvent(ctx context.Context, cmd CaptureEventCommand) error
}

// NotificationService resolves templates, persists notification records, and
// best-effort enqueues the email side channel.
type NotificationService interface {
	Dispatch(ctx context.Context, cmd DispatchCommand) (Notification, error)
	DispatchTransition(ctx context.Context, cmd TransitionDispatchCommand) (Notification, bool, error)
	List(ctx context.Context, query NotificationListQuery) (NotificationList, error)
	MarkRead(ctx context.Context, cmd NotificationReadCommand) (Notification, error)
	MarkUnread(ctx context.Context, cmd NotificationReadCommand) (Notification, error)
	MarkAllRead(ctx context.Context, userRef string) (int, error)
	Delete(ctx context.Context, cmd NotificationReadCommand) error
	SweepExpired(ctx context.Context) (int, error)
}

// CatalogService exposes the purchasable catalog to order creation and the storefront.
type CatalogService interface {
	ListActive(ctx context.Context) ([]Service, error)
	GetActive(ctx context.Context, serviceID string) (Service, error)
}

// SystemService aggregates utility endpoints such as readiness reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EmailJobPublisher enqueues rendered notification emails for a downstream worker.
type EmailJobPublisher interface {
	PublishEmailJob(ctx context.Context, message EmailJobMessage) (string, error)
}

// EmailJobMessage is the payload published to the email topic.
type EmailJobMessage struct {
	NotificationID string    `json:"notificationId"`
	UserRef        string    `json:"userId"`
	OrderRef       string    `json:"orderId,omitempty"`
	To             string    `json:"to"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Type           string    `json:"type"`
	QueuedAt       time.Time `json:"queuedAt"`
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand carries the order-creation request after authentication.
type CreateOrderCommand struct {
	ActorID        string
	ServiceID      string
	Customer       CustomerSnapshot
	Description    string
	Timeline       Timeline
	AdditionalReqs string
}

// GetOrderQuery scopes a single-order read to the requesting actor.
type GetOrderQuery struct {
	OrderID      string
	ActorID      string
	ActorIsAdmin bool
}

// OrderListQuery narrows order listings. CustomerRef is forced to the actor
// for non-admin callers.
type OrderListQuery struct {
	CustomerRef string
	Status      *OrderStatus
	Page        PageRequest
}

// UpdateOrderStatusCommand is the admin status-advancement request.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	Note    string
	ActorID string
}

// CancelOrderCommand is the customer-initiated cancellation request.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

// AssignOrderCommand assigns an order to a team member.
type AssignOrderCommand struct {
	OrderID     string
	AssigneeRef string
	ActorID     string
}

// StartPaymentCommand creates the provider-side order for checkout approval.
type StartPaymentCommand struct {
	OrderNumber string
	ActorID     string
	ReturnURL   string
	CancelURL   string
}

// PaymentApproval points the customer at the provider's approval flow.
type PaymentApproval struct {
	ProviderRef string
	ApprovalURL string
	Status      string
}

// CapturePaymentCommand captures an approved provider order.
type CapturePaymentCommand struct {
	ProviderRef string
	OrderNumber string
	ActorID     string
}

// RefundOrderCommand refunds a completed payment. A nil Amount means full refund.
type RefundOrderCommand struct {
	OrderNumber string
	Amount      *int64
	Reason      string
	ActorID     string
}

// AddOrderNoteCommand appends a free-text note to an order.
type AddOrderNoteCommand struct {
	OrderID      string
	Message      string
	NoteType     string
	ActorID      string
	ActorIsAdmin bool
}

// AddAttachmentCommand appends attachment metadata to an order. The file
// itself lives in external storage; only its name and URL are recorded.
type AddAttachmentCommand struct {
	OrderID      string
	Name         string
	URL          string
	ActorID      string
	ActorIsAdmin bool
}

// RequestRevisionCommand raises a customer change request during review.
type RequestRevisionCommand struct {
	OrderID     string
	ActorID     string
	Description string
}

// SubmitFeedbackCommand records the customer's rating on a completed order.
type SubmitFeedbackCommand struct {
	OrderID string
	ActorID string
	Rating  int
	Comment string
}

// CaptureEventCommand carries a verified provider webhook event.
type CaptureEventCommand struct {
	EventType     string
	ProviderRef   string
	TransactionID string
	OccurredAt    time.Time
}

// DispatchCommand triggers one notification for an order event.
type DispatchCommand struct {
	OrderID string
	Type    NotificationType
	Extra   map[string]string
}

// TransitionDispatchCommand resolves the notification mapped to a status
// transition. Unmapped transitions dispatch nothing.
type TransitionDispatchCommand struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

// NotificationListQuery narrows a user's notification listing.
type NotificationListQuery struct {
	UserRef    string
	Status     *NotificationStatus
	Type       *NotificationType
	UnreadOnly bool
	Page       PageRequest
}

// NotificationList is the notification listing envelope with read-state totals.
type NotificationList struct {
	Notifications []Notification
	Total         int64
	UnreadCount   int64
	Page          PageInfo
}

// NotificationReadCommand scopes a single-notification mutation to its owner.
type NotificationReadCommand struct {
	NotificationID string
	UserRef        string
}

// NotificationRepositories re-exported for handler wiring convenience.
type (
	OrderListFilter        = repositories.OrderListFilter
	NotificationListFilter = repositories.NotificationListFilter
)
