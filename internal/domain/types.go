package domain

import (
	"time"
)

// PageRequest defines standard offset paging inputs for list operations.
type PageRequest struct {
	Page  int
	Limit int
}

// PageInfo summarises an offset-paged result set for response envelopes.
type PageInfo struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// Timeline enumerates the delivery-speed options a customer selects at purchase.
// The literals are consumed verbatim by the storefront and must not change.
type Timeline string

const (
	// TimelineRush is the fastest option and carries a +50% price adjustment.
	TimelineRush Timeline = "rush"
	// TimelineFast carries a +25% price adjustment.
	TimelineFast Timeline = "fast"
	// TimelineStandard carries no price adjustment.
	TimelineStandard Timeline = "standard"
	// TimelineFlexible carries a -10% price adjustment.
	TimelineFlexible Timeline = "flexible"
)

// OrderStatus enumerates valid lifecycle states for orders.
// The literals are consumed verbatim by the storefront and must not change.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed but payment has not completed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment completed and work can be scheduled.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusInProgress indicates work on the order has started.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusUnderReview indicates deliverables await customer review.
	OrderStatusUnderReview OrderStatus = "under_review"
	// OrderStatusRevisionRequested indicates the customer asked for changes.
	OrderStatusRevisionRequested OrderStatus = "revision_requested"
	// OrderStatusCompleted is the successful terminal state.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is the unsuccessful terminal state.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment states tracked on an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no capture has been attempted yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing indicates a capture is in flight at the provider.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusCompleted indicates funds were captured.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed indicates the capture attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates a completed payment was refunded.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// CustomerSnapshot denormalizes the purchasing user's identity at order time
// so historical orders are unaffected by later profile edits.
type CustomerSnapshot struct {
	UserRef   string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
}

// ServiceSnapshot denormalizes the purchased product at order time.
type ServiceSnapshot struct {
	ServiceRef string
	Name       string
	Subtitle   string
	Category   string
	Features   []string
	ImageURL   string
}

// ProjectDetails captures the customer's brief and the derived schedule.
type ProjectDetails struct {
	Description            string
	Timeline               Timeline
	AdditionalRequirements string
	StartDate              *time.Time
	ExpectedDeliveryDate   *time.Time
	ActualDeliveryDate     *time.Time
}

// Pricing holds the priced amounts for an order in minor currency units.
type Pricing struct {
	Subtotal           int64
	Tax                int64
	Total              int64
	Currency           string
	TimelineAdjustment int
}

// OrderPayment tracks the payment state and provider references for an order.
type OrderPayment struct {
	Method        string
	Status        PaymentStatus
	TransactionID string
	ProviderRef   string
	PaidAt        *time.Time
	RefundedAt    *time.Time
	RefundAmount  int64
}

// StatusHistoryEntry records one lifecycle transition. The statusHistory slice
// is append-only: entries are never removed or reordered.
type StatusHistoryEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	Note      string
	UpdatedBy string
}

// AuthorKind distinguishes customer and staff authorship on notes.
type AuthorKind string

const (
	// AuthorKindUser marks content written by the purchasing customer.
	AuthorKindUser AuthorKind = "User"
	// AuthorKindAdmin marks content written by staff.
	AuthorKindAdmin AuthorKind = "Admin"
)

// OrderNote is a free-text message attached to an order.
type OrderNote struct {
	ID         string
	Message    string
	AuthorRef  string
	AuthorKind AuthorKind
	Type       string
	CreatedAt  time.Time
}

// OrderAttachment references a delivered or supporting file.
type OrderAttachment struct {
	ID         string
	Name       string
	URL        string
	UploadedBy string
	CreatedAt  time.Time
}

// OrderRevision records a customer change request raised during review.
type OrderRevision struct {
	ID          string
	Description string
	RequestedBy string
	Status      string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// OrderFeedback stores the customer's rating, settable only on completed orders.
type OrderFeedback struct {
	Rating      int
	Comment     string
	SubmittedAt time.Time
}

// Order is the central aggregate. All handlers read then write the full
// document; there is no field-level partial update on the core path.
type Order struct {
	ID            string
	OrderNumber   string
	Customer      CustomerSnapshot
	Service       ServiceSnapshot
	Project       ProjectDetails
	Pricing       Pricing
	Payment       OrderPayment
	Status        OrderStatus
	StatusHistory []StatusHistoryEntry
	AssignedTo    *string
	Notes         []OrderNote
	Attachments   []OrderAttachment
	Revisions     []OrderRevision
	Feedback      *OrderFeedback
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CurrentHistoryStatus returns the status of the most recent history entry.
// It must always equal Order.Status; the two never diverge.
func (o Order) CurrentHistoryStatus() (OrderStatus, bool) {
	if len(o.StatusHistory) == 0 {
		return "", false
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status, true
}

// NotificationType enumerates dispatched event kinds.
// The literals are consumed verbatim by the storefront and must not change.
type NotificationType string

const (
	// NotificationOrderCreated acknowledges a newly placed order.
	NotificationOrderCreated NotificationType = "order_created"
	// NotificationOrderConfirmed signals payment completed.
	NotificationOrderConfirmed NotificationType = "order_confirmed"
	// NotificationOrderAssigned signals a team member took the order.
	NotificationOrderAssigned NotificationType = "order_assigned"
	// NotificationOrderStarted signals work began.
	NotificationOrderStarted NotificationType = "order_started"
	// NotificationOrderUnderReview signals deliverables are ready for review.
	NotificationOrderUnderReview NotificationType = "order_under_review"
	// NotificationOrderRevisionRequested acknowledges a revision request.
	NotificationOrderRevisionRequested NotificationType = "order_revision_requested"
	// NotificationOrderCompleted signals the order finished.
	NotificationOrderCompleted NotificationType = "order_completed"
	// NotificationOrderCancelled signals the order was cancelled.
	NotificationOrderCancelled NotificationType = "order_cancelled"
	// NotificationPaymentProcessed signals a successful capture.
	NotificationPaymentProcessed NotificationType = "payment_processed"
	// NotificationFeedbackRequested invites the customer to rate the order.
	NotificationFeedbackRequested NotificationType = "feedback_requested"
)

// NotificationStatus tracks per-user read state.
type NotificationStatus string

const (
	// NotificationUnread is the initial state of every notification.
	NotificationUnread NotificationStatus = "unread"
	// NotificationRead marks a notification the user has seen.
	NotificationRead NotificationStatus = "read"
)

// NotificationChannels records which side channels were selected at dispatch time.
type NotificationChannels struct {
	InApp bool
	Email bool
	SMS   bool
}

// EmailStatus records the outcome of the best-effort email side channel.
type EmailStatus struct {
	Sent   bool
	SentAt *time.Time
	Error  string
}

// Notification is created exactly once per dispatched event.
// Invariant: Status==read implies ReadAt set; Status==unread implies ReadAt unset.
type Notification struct {
	ID          string
	UserRef     string
	OrderRef    string
	Type        NotificationType
	Title       string
	Message     string
	Status      NotificationStatus
	Priority    string
	Data        map[string]any
	Channels    NotificationChannels
	EmailStatus EmailStatus
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// Service is a purchasable catalog entry. Orders snapshot it at creation.
type Service struct {
	ID          string
	Name        string
	Subtitle    string
	Category    string
	Description string
	Features    []string
	ImageURL    string
	BasePrice   int64
	Currency    string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NotificationPreferences stores per-channel notification opt-in flags.
// A missing channel key means the channel is enabled.
type NotificationPreferences map[string]bool

// EmailEnabled reports whether the email channel is enabled; the default is
// true unless the user explicitly disabled it.
func (p NotificationPreferences) EmailEnabled() bool {
	if p == nil {
		return true
	}
	enabled, ok := p["email"]
	if !ok {
		return true
	}
	return enabled
}

// UserProfile is the slice of the user record the order/notification core reads.
type UserProfile struct {
	ID                string
	DisplayName       string
	Email             string
	Phone             string
	Company           string
	Roles             []string
	IsActive          bool
	NotificationPrefs NotificationPreferences
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but the service is running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck captures the outcome of probing a single dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks into an overall readiness verdict.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}

// OffsetPage packages offset-paged list results with totals for envelopes
// that report total/unread counts alongside the page.
type OffsetPage[T any] struct {
	Items []T
	Page  PageInfo
}
