package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/payments"
	"github.com/lumio-market/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the operation is not legal in the order's current state.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates duplicate writes or non-cancellable cancellations.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrPaymentDeclined indicates the provider rejected the payment for business reasons.
	ErrPaymentDeclined = errors.New("order: payment declined")
)

// orderStatuses is the closed status enum checked on admin updates. Admins may
// force any transition between members; only enum membership is validated.
var orderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:           true,
	domain.OrderStatusConfirmed:         true,
	domain.OrderStatusInProgress:        true,
	domain.OrderStatusUnderReview:       true,
	domain.OrderStatusRevisionRequested: true,
	domain.OrderStatusCompleted:         true,
	domain.OrderStatusCancelled:         true,
}

// customerCancellable lists the states a customer may cancel from.
var customerCancellable = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:   true,
	domain.OrderStatusConfirmed: true,
}

// captureEventCompleted and captureEventRefunded are the webhook event types
// the order core reacts to.
const (
	captureEventCompleted = "PAYMENT.CAPTURE.COMPLETED"
	captureEventRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Catalog         CatalogService
	Gateway         payments.Gateway
	Notifications   NotificationService
	Clock           func() time.Time
	IDGenerator     func() string
	NumberGenerator func(time.Time) string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	catalog       CatalogService
	gateway       payments.Gateway
	notifications NotificationService
	clock         func() time.Time
	newID         func() string
	newNumber     func(time.Time) string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	numberGen := deps.NumberGenerator
	if numberGen == nil {
		gen := newOrderNumberGenerator()
		numberGen = gen.Next
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		catalog:       deps.Catalog,
		gateway:       deps.Gateway,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		newNumber: numberGen,
		logger:    logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.ServiceID) == "" {
		return Order{}, fmt.Errorf("%w: service id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.FirstName) == "" || strings.TrimSpace(cmd.Customer.LastName) == "" {
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.Email) == "" {
		return Order{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Description) == "" {
		return Order{}, fmt.Errorf("%w: project description is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(string(cmd.Timeline)) == "" {
		return Order{}, fmt.Errorf("%w: timeline is required", ErrOrderInvalidInput)
	}

	service, err := s.catalog.GetActive(ctx, cmd.ServiceID)
	if err != nil {
		return Order{}, err
	}

	quote := domain.PriceService(service.BasePrice, cmd.Timeline)
	if quote.FallbackApplied {
		s.logger(ctx, "order.pricing.timeline_fallback", map[string]any{
			"timeline": string(cmd.Timeline),
		})
	}

	now := s.now()
	customer := cmd.Customer
	customer.UserRef = actorID

	currency := service.Currency
	if currency == "" {
		currency = "USD"
	}

	order := Order{
		ID:          s.newID(),
		OrderNumber: s.newNumber(now),
		Customer:    customer,
		Service: domain.ServiceSnapshot{
			ServiceRef: service.ID,
			Name:       service.Name,
			Subtitle:   service.Subtitle,
			Category:   service.Category,
			Features:   service.Features,
			ImageURL:   service.ImageURL,
		},
		Project: domain.ProjectDetails{
			Description:            strings.TrimSpace(cmd.Description),
			Timeline:               cmd.Timeline,
			AdditionalRequirements: strings.TrimSpace(cmd.AdditionalReqs),
		},
		Pricing: domain.Pricing{
			Subtotal:           quote.Subtotal,
			Tax:                quote.Tax,
			Total:              quote.Total,
			Currency:           currency,
			TimelineAdjustment: quote.TimelineAdjustment,
		},
		Payment: domain.OrderPayment{
			Method: "paypal",
			Status: domain.PaymentStatusPending,
		},
		Status: domain.OrderStatusPending,
		StatusHistory: []domain.StatusHistoryEntry{{
			Status:    domain.OrderStatusPending,
			Timestamp: now,
			Note:      "Order created",
			UpdatedBy: actorID,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"serviceId":   service.ID,
	})

	s.dispatch(ctx, order.ID, domain.NotificationOrderCreated, nil)
	return order, nil
}

func (s *orderService) Get(ctx context.Context, query GetOrderQuery) (Order, error) {
	if strings.TrimSpace(query.OrderID) == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, query.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if !query.ActorIsAdmin && order.Customer.UserRef != query.ActorID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, query.OrderID)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, query OrderListQuery) (domain.OffsetPage[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		CustomerRef: query.CustomerRef,
		Status:      query.Status,
		Page:        query.Page,
	})
	if err != nil {
		return domain.OffsetPage[Order]{}, s.translate(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !orderStatuses[cmd.Status] {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}

	now := s.now()
	from := order.Status
	appendStatus(&order, cmd.Status, cmd.Note, cmd.ActorID, now)
	s.applyTransitionEffects(ctx, &order, cmd.Status, now)

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": order.ID,
		"from":    string(from),
		"to":      string(cmd.Status),
	})

	s.dispatchTransition(ctx, order.ID, from, cmd.Status)
	if cmd.Status == domain.OrderStatusCompleted && from != domain.OrderStatusCompleted {
		s.dispatch(ctx, order.ID, domain.NotificationFeedbackRequested, nil)
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if order.Customer.UserRef != cmd.ActorID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, cmd.OrderID)
	}
	if !customerCancellable[order.Status] {
		return Order{}, fmt.Errorf("%w: order in status %q cannot be cancelled", ErrOrderConflict, order.Status)
	}

	now := s.now()
	from := order.Status
	note := "Cancelled by customer"
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		note = "Cancelled by customer: " + reason
	}
	appendStatus(&order, domain.OrderStatusCancelled, note, cmd.ActorID, now)

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": order.ID,
		"from":    string(from),
	})

	s.dispatchTransition(ctx, order.ID, from, domain.OrderStatusCancelled)
	return order, nil
}

func (s *orderService) Assign(ctx context.Context, cmd AssignOrderCommand) (Order, error) {
	assignee := strings.TrimSpace(cmd.AssigneeRef)
	if assignee == "" {
		return Order{}, fmt.Errorf("%w: assignee is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}

	order.AssignedTo = &assignee
	order.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.dispatch(ctx, order.ID, domain.NotificationOrderAssigned, nil)
	return order, nil
}

// StartPayment creates the provider-side order carrying the exact pricing
// breakdown and records the provider reference for the capture step.
func (s *orderService) StartPayment(ctx context.Context, cmd StartPaymentCommand) (PaymentApproval, error) {
	number := strings.TrimSpace(cmd.OrderNumber)
	if number == "" {
		return PaymentApproval{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByOrderNumber(ctx, number)
	if err != nil {
		return PaymentApproval{}, s.translate(err)
	}
	if order.Customer.UserRef != cmd.ActorID {
		return PaymentApproval{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, number)
	}
	if order.Payment.Status == domain.PaymentStatusCompleted || order.Payment.Status == domain.PaymentStatusRefunded {
		return PaymentApproval{}, fmt.Errorf("%w: payment already settled", ErrOrderConflict)
	}

	result, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Description: order.Service.Name,
		Subtotal:    order.Pricing.Subtotal,
		Tax:         order.Pricing.Tax,
		Total:       order.Pricing.Total,
		Currency:    order.Pricing.Currency,
		ReturnURL:   strings.TrimSpace(cmd.ReturnURL),
		CancelURL:   strings.TrimSpace(cmd.CancelURL),
	})
	if err != nil {
		return PaymentApproval{}, err
	}
	if !result.Success {
		code := "DECLINED"
		if result.Declined != nil {
			code = result.Declined.Code
		}
		return PaymentApproval{}, fmt.Errorf("%w: %s", ErrPaymentDeclined, code)
	}

	order.Payment.Status = domain.PaymentStatusProcessing
	order.Payment.ProviderRef = result.ProviderRef
	order.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, order); err != nil {
		return PaymentApproval{}, s.translate(err)
	}

	s.logger(ctx, "order.payment.started", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"providerRef": result.ProviderRef,
	})

	return PaymentApproval{
		ProviderRef: result.ProviderRef,
		ApprovalURL: result.ApprovalURL,
		Status:      result.Status,
	}, nil
}

func (s *orderService) CapturePayment(ctx context.Context, cmd CapturePaymentCommand) (Order, error) {
	providerRef := strings.TrimSpace(cmd.ProviderRef)
	if providerRef == "" {
		return Order{}, fmt.Errorf("%w: provider order id is required", ErrOrderInvalidInput)
	}
	number := strings.TrimSpace(cmd.OrderNumber)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByOrderNumber(ctx, number)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if order.Customer.UserRef != cmd.ActorID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, number)
	}
	if order.Payment.Status == domain.PaymentStatusCompleted {
		return Order{}, fmt.Errorf("%w: payment already captured", ErrOrderConflict)
	}

	result, err := s.gateway.CaptureOrder(ctx, providerRef)
	if err != nil {
		return Order{}, err
	}
	if !result.Success {
		code := "DECLINED"
		if result.Declined != nil {
			code = result.Declined.Code
		}
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentDeclined, code)
	}

	now := s.now()
	s.markPaymentCaptured(&order, providerRef, result.TransactionID, result.CapturedAt, cmd.ActorID, now)

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.logger(ctx, "order.payment.captured", map[string]any{
		"orderId":       order.ID,
		"orderNumber":   order.OrderNumber,
		"transactionId": result.TransactionID,
	})

	s.dispatch(ctx, order.ID, domain.NotificationPaymentProcessed, nil)
	return order, nil
}

func (s *orderService) Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	number := strings.TrimSpace(cmd.OrderNumber)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByOrderNumber(ctx, number)
	if err != nil {
		return Order{}, s.translate(err)
	}
	// The precondition is checked before any provider call is made.
	if order.Payment.Status != domain.PaymentStatusCompleted {
		return Order{}, fmt.Errorf("%w: payment status is %q, refund requires a completed payment", ErrOrderConflict, order.Payment.Status)
	}

	result, err := s.gateway.RefundPayment(ctx, payments.RefundRequest{
		TransactionID: order.Payment.TransactionID,
		Amount:        cmd.Amount,
		Currency:      order.Pricing.Currency,
		Reason:        cmd.Reason,
	})
	if err != nil {
		return Order{}, err
	}
	if !result.Success {
		code := "DECLINED"
		if result.Declined != nil {
			code = result.Declined.Code
		}
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentDeclined, code)
	}

	now := s.now()
	from := order.Status
	s.markPaymentRefunded(&order, cmd.Amount, cmd.Reason, cmd.ActorID, result.RefundedAt, now)

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.logger(ctx, "order.payment.refunded", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"refundId":    result.RefundID,
	})

	s.dispatchTransition(ctx, order.ID, from, domain.OrderStatusCancelled)
	return order, nil
}

func (s *orderService) AddNote(ctx context.Context, cmd AddOrderNoteCommand) (Order, error) {
	message := strings.TrimSpace(cmd.Message)
	if message == "" {
		return Order{}, fmt.Errorf("%w: note message is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if !cmd.ActorIsAdmin && order.Customer.UserRef != cmd.ActorID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, cmd.OrderID)
	}

	kind := domain.AuthorKindUser
	if cmd.ActorIsAdmin {
		kind = domain.AuthorKindAdmin
	}

	now := s.now()
	order.Notes = append(order.Notes, domain.OrderNote{
		ID:         s.newID(),
		Message:    message,
		AuthorRef:  cmd.ActorID,
		AuthorKind: kind,
		Type:       strings.TrimSpace(cmd.NoteType),
		CreatedAt:  now,
	})
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}
	return order, nil
}

// AddAttachment records name and URL metadata for a file already hosted
// elsewhere. Blob upload is not handled here.
func (s *orderService) AddAttachment(ctx context.Context, cmd AddAttachmentCommand) (Order, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Order{}, fmt.Errorf("%w: attachment name is required", ErrOrderInvalidInput)
	}
	url := strings.TrimSpace(cmd.URL)
	if url == "" {
		return Order{}, fmt.Errorf("%w: attachment url is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if !cmd.ActorIsAdmin && order.Customer.UserRef != cmd.ActorID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, cmd.OrderID)
	}

	now := s.now()
	order.Attachments = append(order.Attachments, domain.OrderAttachment{
		ID:         s.newID(),
		Name:       name,
		URL:        url,
		UploadedBy: cmd.ActorID,
		CreatedAt:  now,
	})
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}
	return order, nil
}

func (s *orderService) RequestRevision(ctx context.Context, cmd RequestRevisionCommand) (Order, error) {
	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		return Order{}, fmt.Errorf("%w: revision description is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if order.Customer.UserRef != cmd.ActorID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, cmd.OrderID)
	}
	if order.Status != domain.OrderStatusUnderReview {
		return Order{}, fmt.Errorf("%w: revisions may only be requested while the order is under review", ErrOrderInvalidState)
	}

	now := s.now()
	order.Revisions = append(order.Revisions, domain.OrderRevision{
		ID:          s.newID(),
		Description: description,
		RequestedBy: cmd.ActorID,
		Status:      "open",
		CreatedAt:   now,
	})
	from := order.Status
	appendStatus(&order, domain.OrderStatusRevisionRequested, "Revision requested", cmd.ActorID, now)

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.dispatchTransition(ctx, order.ID, from, domain.OrderStatusRevisionRequested)
	return order, nil
}

func (s *orderService) SubmitFeedback(ctx context.Context, cmd SubmitFeedbackCommand) (Order, error) {
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Order{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if order.Customer.UserRef != cmd.ActorID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, cmd.OrderID)
	}
	if order.Status != domain.OrderStatusCompleted {
		return Order{}, fmt.Errorf("%w: feedback may only be submitted on completed orders", ErrOrderInvalidState)
	}
	if order.Feedback != nil {
		return Order{}, fmt.Errorf("%w: feedback already submitted", ErrOrderConflict)
	}

	now := s.now()
	order.Feedback = &domain.OrderFeedback{
		Rating:      cmd.Rating,
		Comment:     strings.TrimSpace(cmd.Comment),
		SubmittedAt: now,
	}
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}
	return order, nil
}

// ApplyCaptureEvent reconciles a verified provider webhook against order
// state. Events that have already been applied are skipped.
func (s *orderService) ApplyCaptureEvent(ctx context.Context, cmd CaptureEventCommand) error {
	providerRef := strings.TrimSpace(cmd.ProviderRef)
	if providerRef == "" {
		return fmt.Errorf("%w: provider ref is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByProviderRef(ctx, providerRef)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || repositories.IsNotFound(err) {
			// Capture flow may not have written the provider ref yet; the
			// synchronous path remains authoritative.
			s.logger(ctx, "order.webhook.unmatched", map[string]any{
				"providerRef": providerRef,
				"eventType":   cmd.EventType,
			})
			return nil
		}
		return s.translate(err)
	}

	now := s.now()
	switch cmd.EventType {
	case captureEventCompleted:
		if order.Payment.Status == domain.PaymentStatusCompleted {
			return nil
		}
		capturedAt := cmd.OccurredAt
		if capturedAt.IsZero() {
			capturedAt = now
		}
		s.markPaymentCaptured(&order, providerRef, cmd.TransactionID, &capturedAt, "webhook", now)
		if err := s.orders.Update(ctx, order); err != nil {
			return s.translate(err)
		}
		s.dispatch(ctx, order.ID, domain.NotificationPaymentProcessed, nil)
		return nil
	case captureEventRefunded:
		if order.Payment.Status == domain.PaymentStatusRefunded {
			return nil
		}
		from := order.Status
		refundedAt := cmd.OccurredAt
		if refundedAt.IsZero() {
			refundedAt = now
		}
		s.markPaymentRefunded(&order, nil, "provider refund", "webhook", &refundedAt, now)
		if err := s.orders.Update(ctx, order); err != nil {
			return s.translate(err)
		}
		s.dispatchTransition(ctx, order.ID, from, domain.OrderStatusCancelled)
		return nil
	default:
		s.logger(ctx, "order.webhook.ignored", map[string]any{
			"eventType": cmd.EventType,
		})
		return nil
	}
}

// markPaymentCaptured records a successful capture and forces the order into
// confirmed with a dedicated history entry, regardless of prior status.
func (s *orderService) markPaymentCaptured(order *Order, providerRef, transactionID string, capturedAt *time.Time, actorID string, now time.Time) {
	order.Payment.Status = domain.PaymentStatusCompleted
	order.Payment.ProviderRef = providerRef
	if transactionID != "" {
		order.Payment.TransactionID = transactionID
	}
	paidAt := now
	if capturedAt != nil {
		paidAt = *capturedAt
	}
	order.Payment.PaidAt = &paidAt
	appendStatus(order, domain.OrderStatusConfirmed, "Payment completed", actorID, now)
}

func (s *orderService) markPaymentRefunded(order *Order, amount *int64, reason, actorID string, refundedAt *time.Time, now time.Time) {
	order.Payment.Status = domain.PaymentStatusRefunded
	at := now
	if refundedAt != nil {
		at = *refundedAt
	}
	order.Payment.RefundedAt = &at
	if amount != nil {
		order.Payment.RefundAmount = *amount
	} else {
		order.Payment.RefundAmount = order.Pricing.Total
	}
	note := "Refunded: " + strings.TrimSpace(reason)
	appendStatus(order, domain.OrderStatusCancelled, note, actorID, now)
}

// applyTransitionEffects performs the status-specific side effects: entering
// in_progress for the first time sets the schedule, entering completed for
// the first time records delivery.
func (s *orderService) applyTransitionEffects(ctx context.Context, order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusInProgress:
		if order.Project.StartDate == nil {
			start := now
			order.Project.StartDate = &start
		}
		if order.Project.ExpectedDeliveryDate == nil {
			offset, ok := domain.DeliveryOffsetDays(order.Project.Timeline)
			if !ok {
				offset, _ = domain.DeliveryOffsetDays(domain.TimelineStandard)
				s.logger(ctx, "order.delivery.timeline_fallback", map[string]any{
					"orderId":  order.ID,
					"timeline": string(order.Project.Timeline),
				})
			}
			expected := order.Project.StartDate.AddDate(0, 0, offset)
			order.Project.ExpectedDeliveryDate = &expected
		}
	case domain.OrderStatusCompleted:
		if order.Project.ActualDeliveryDate == nil {
			delivered := now
			order.Project.ActualDeliveryDate = &delivered
		}
	}
}

// appendStatus appends a history entry and sets the status in one mutation so
// the two never diverge.
func appendStatus(order *Order, status domain.OrderStatus, note, actorID string, now time.Time) {
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:    status,
		Timestamp: now,
		Note:      note,
		UpdatedBy: actorID,
	})
	order.Status = status
	order.UpdatedAt = now
}

// dispatch fires a notification best-effort. Failures are logged and never
// propagated to the order mutation that triggered them.
func (s *orderService) dispatch(ctx context.Context, orderID string, kind domain.NotificationType, extra map[string]string) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Dispatch(ctx, DispatchCommand{OrderID: orderID, Type: kind, Extra: extra}); err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderId": orderID,
			"type":    string(kind),
			"error":   err.Error(),
		})
	}
}

func (s *orderService) dispatchTransition(ctx context.Context, orderID string, from, to domain.OrderStatus) {
	if s.notifications == nil {
		return
	}
	if _, _, err := s.notifications.DispatchTransition(ctx, TransitionDispatchCommand{OrderID: orderID, From: from, To: to}); err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderId": orderID,
			"from":    string(from),
			"to":      string(to),
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	default:
		return err
	}
}

func (s *orderService) now() time.Time {
	return s.clock()
}
