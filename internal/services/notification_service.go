package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/repositories"
)

const notificationIDPrefix = "ntf_"

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification or its order could not be located.
	ErrNotificationNotFound = errors.New("notification: not found")
	// ErrUnknownEventType indicates the event kind has no registered template.
	ErrUnknownEventType = errors.New("notification: unknown event type")
)

// NotificationTemplate renders one event kind. Placeholders use {name} syntax
// and are checked against allowedPlaceholders when the registry is built.
type NotificationTemplate struct {
	Title    string
	Message  string
	Priority string
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z][a-zA-Z0-9]*)\}`)

// allowedPlaceholders is the closed set of names templates may reference.
var allowedPlaceholders = map[string]bool{
	"serviceName": true,
	"orderNumber": true,
	"amount":      true,
	"reason":      true,
	"assignee":    true,
}

// defaultTemplates covers every dispatched event kind.
var defaultTemplates = map[domain.NotificationType]NotificationTemplate{
	domain.NotificationOrderCreated: {
		Title:    "Order Received",
		Message:  "Your order {orderNumber} for {serviceName} has been received.",
		Priority: "medium",
	},
	domain.NotificationOrderConfirmed: {
		Title:    "Order Confirmed",
		Message:  "Your order {orderNumber} has been confirmed. We will begin work shortly.",
		Priority: "high",
	},
	domain.NotificationOrderAssigned: {
		Title:    "Team Member Assigned",
		Message:  "A team member has been assigned to your order {orderNumber}.",
		Priority: "medium",
	},
	domain.NotificationOrderStarted: {
		Title:    "Work Started",
		Message:  "Work on your order {orderNumber} ({serviceName}) has started.",
		Priority: "medium",
	},
	domain.NotificationOrderUnderReview: {
		Title:    "Ready for Review",
		Message:  "Your order {orderNumber} is ready for your review.",
		Priority: "high",
	},
	domain.NotificationOrderRevisionRequested: {
		Title:    "Revision Requested",
		Message:  "Your revision request for order {orderNumber} has been received.",
		Priority: "medium",
	},
	domain.NotificationOrderCompleted: {
		Title:    "Order Completed",
		Message:  "Your order {orderNumber} for {serviceName} has been completed.",
		Priority: "high",
	},
	domain.NotificationOrderCancelled: {
		Title:    "Order Cancelled",
		Message:  "Your order {orderNumber} has been cancelled.",
		Priority: "high",
	},
	domain.NotificationPaymentProcessed: {
		Title:    "Payment Processed",
		Message:  "Your payment of {amount} for order {orderNumber} has been processed.",
		Priority: "high",
	},
	domain.NotificationFeedbackRequested: {
		Title:    "How Did We Do?",
		Message:  "Your order {orderNumber} is complete. We would love your feedback.",
		Priority: "low",
	},
}

// transitionNotifications maps status transitions to the event kind they
// dispatch. Transitions without an entry dispatch nothing.
var transitionNotifications = map[string]domain.NotificationType{
	"pending_to_confirmed":               domain.NotificationOrderConfirmed,
	"confirmed_to_in_progress":           domain.NotificationOrderStarted,
	"revision_requested_to_in_progress":  domain.NotificationOrderStarted,
	"in_progress_to_under_review":        domain.NotificationOrderUnderReview,
	"under_review_to_revision_requested": domain.NotificationOrderRevisionRequested,
	"under_review_to_completed":          domain.NotificationOrderCompleted,
	"pending_to_cancelled":               domain.NotificationOrderCancelled,
	"confirmed_to_cancelled":             domain.NotificationOrderCancelled,
	"in_progress_to_cancelled":           domain.NotificationOrderCancelled,
	"under_review_to_cancelled":          domain.NotificationOrderCancelled,
	"revision_requested_to_cancelled":    domain.NotificationOrderCancelled,
}

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Orders        repositories.OrderRepository
	Users         repositories.UserRepository
	Email         EmailJobPublisher
	Templates     map[domain.NotificationType]NotificationTemplate
	RetentionAge  time.Duration
	SweepBatch    int
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	notifications repositories.NotificationRepository
	orders        repositories.OrderRepository
	users         repositories.UserRepository
	email         EmailJobPublisher
	templates     map[domain.NotificationType]NotificationTemplate
	sanitize      *bluemonday.Policy
	retentionAge  time.Duration
	sweepBatch    int
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete NotificationService.
// The template registry is validated up front: a template referencing a
// placeholder outside the closed set is a construction error, not a render-time
// surprise.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("notification service: order repository is required")
	}

	templates := deps.Templates
	if templates == nil {
		templates = defaultTemplates
	}
	for kind, tpl := range templates {
		for _, field := range []string{tpl.Title, tpl.Message} {
			for _, match := range placeholderPattern.FindAllStringSubmatch(field, -1) {
				if !allowedPlaceholders[match[1]] {
					return nil, fmt.Errorf("notification service: template %q references unknown placeholder %q", kind, match[1])
				}
			}
		}
	}

	retention := deps.RetentionAge
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	batch := deps.SweepBatch
	if batch <= 0 {
		batch = 200
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return notificationIDPrefix + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		notifications: deps.Notifications,
		orders:        deps.Orders,
		users:         deps.Users,
		email:         deps.Email,
		templates:     templates,
		sanitize:      bluemonday.StrictPolicy(),
		retentionAge:  retention,
		sweepBatch:    batch,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *notificationService) Dispatch(ctx context.Context, cmd DispatchCommand) (Notification, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return Notification{}, fmt.Errorf("%w: order id is required", ErrNotificationInvalidInput)
	}

	// The order must exist before the event type is considered.
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Notification{}, fmt.Errorf("%w: order %s", ErrNotificationNotFound, cmd.OrderID)
		}
		return Notification{}, err
	}

	template, ok := s.templates[cmd.Type]
	if !ok {
		return Notification{}, fmt.Errorf("%w: %q", ErrUnknownEventType, cmd.Type)
	}

	values := map[string]string{
		"serviceName": order.Service.Name,
		"orderNumber": order.OrderNumber,
		"amount":      formatNotificationAmount(order.Pricing.Total, order.Pricing.Currency),
	}
	for key, value := range cmd.Extra {
		values[key] = value
	}
	for key, value := range values {
		values[key] = s.sanitize.Sanitize(value)
	}

	now := s.now()
	notification := Notification{
		ID:       s.newID(),
		UserRef:  order.Customer.UserRef,
		OrderRef: order.ID,
		Type:     cmd.Type,
		Title:    renderTemplate(template.Title, values),
		Message:  renderTemplate(template.Message, values),
		Status:   domain.NotificationUnread,
		Priority: template.Priority,
		Data: map[string]any{
			"orderNumber": order.OrderNumber,
			"serviceName": order.Service.Name,
		},
		Channels: domain.NotificationChannels{
			InApp: true,
			Email: s.emailEnabled(ctx, order.Customer.UserRef),
		},
		CreatedAt: now,
	}

	if err := s.notifications.Insert(ctx, notification); err != nil {
		return Notification{}, err
	}

	if notification.Channels.Email {
		s.sendEmail(ctx, &notification, order)
	}

	s.logger(ctx, "notification.dispatched", map[string]any{
		"notificationId": notification.ID,
		"orderId":        order.ID,
		"type":           string(cmd.Type),
	})
	return notification, nil
}

// DispatchTransition resolves the event kind mapped to a status transition and
// dispatches it. Unmapped transitions dispatch nothing and report false.
func (s *notificationService) DispatchTransition(ctx context.Context, cmd TransitionDispatchCommand) (Notification, bool, error) {
	key := fmt.Sprintf("%s_to_%s", cmd.From, cmd.To)
	kind, ok := transitionNotifications[key]
	if !ok {
		s.logger(ctx, "notification.transition.unmapped", map[string]any{
			"orderId":    cmd.OrderID,
			"transition": key,
		})
		return Notification{}, false, nil
	}

	notification, err := s.Dispatch(ctx, DispatchCommand{OrderID: cmd.OrderID, Type: kind})
	if err != nil {
		return Notification{}, false, err
	}
	return notification, true, nil
}

func (s *notificationService) List(ctx context.Context, query NotificationListQuery) (NotificationList, error) {
	userRef := strings.TrimSpace(query.UserRef)
	if userRef == "" {
		return NotificationList{}, fmt.Errorf("%w: user ref is required", ErrNotificationInvalidInput)
	}

	page, err := s.notifications.ListByUser(ctx, userRef, repositories.NotificationListFilter{
		Status:     query.Status,
		Type:       query.Type,
		UnreadOnly: query.UnreadOnly,
		Page:       query.Page,
	})
	if err != nil {
		return NotificationList{}, err
	}

	unread, err := s.notifications.CountUnread(ctx, userRef)
	if err != nil {
		return NotificationList{}, err
	}

	return NotificationList{
		Notifications: page.Items,
		Total:         page.Page.Total,
		UnreadCount:   unread,
		Page:          page.Page,
	}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, cmd NotificationReadCommand) (Notification, error) {
	notification, err := s.owned(ctx, cmd)
	if err != nil {
		return Notification{}, err
	}
	if notification.Status == domain.NotificationRead {
		return notification, nil
	}

	now := s.now()
	notification.Status = domain.NotificationRead
	notification.ReadAt = &now
	if err := s.notifications.Update(ctx, notification); err != nil {
		return Notification{}, err
	}
	return notification, nil
}

func (s *notificationService) MarkUnread(ctx context.Context, cmd NotificationReadCommand) (Notification, error) {
	notification, err := s.owned(ctx, cmd)
	if err != nil {
		return Notification{}, err
	}
	if notification.Status == domain.NotificationUnread {
		return notification, nil
	}

	notification.Status = domain.NotificationUnread
	notification.ReadAt = nil
	if err := s.notifications.Update(ctx, notification); err != nil {
		return Notification{}, err
	}
	return notification, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userRef string) (int, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return 0, fmt.Errorf("%w: user ref is required", ErrNotificationInvalidInput)
	}

	marked := 0
	for {
		page, err := s.notifications.ListByUser(ctx, userRef, repositories.NotificationListFilter{
			UnreadOnly: true,
			Page:       domain.PageRequest{Page: 1, Limit: s.sweepBatch},
		})
		if err != nil {
			return marked, err
		}
		if len(page.Items) == 0 {
			return marked, nil
		}
		now := s.now()
		for _, notification := range page.Items {
			notification.Status = domain.NotificationRead
			readAt := now
			notification.ReadAt = &readAt
			if err := s.notifications.Update(ctx, notification); err != nil {
				return marked, err
			}
			marked++
		}
	}
}

func (s *notificationService) Delete(ctx context.Context, cmd NotificationReadCommand) error {
	if _, err := s.owned(ctx, cmd); err != nil {
		return err
	}
	return s.notifications.Delete(ctx, cmd.NotificationID)
}

// SweepExpired deletes read notifications older than the retention age, in
// batches, and reports the number removed.
func (s *notificationService) SweepExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retentionAge)
	total := 0
	for {
		deleted, err := s.notifications.DeleteReadOlderThan(ctx, cutoff, s.sweepBatch)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < s.sweepBatch {
			break
		}
	}
	s.logger(ctx, "notification.sweep.completed", map[string]any{
		"deleted": total,
		"cutoff":  cutoff,
	})
	return total, nil
}

func (s *notificationService) now() time.Time {
	return s.clock()
}

func (s *notificationService) owned(ctx context.Context, cmd NotificationReadCommand) (Notification, error) {
	if strings.TrimSpace(cmd.NotificationID) == "" {
		return Notification{}, fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}

	notification, err := s.notifications.FindByID(ctx, cmd.NotificationID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Notification{}, fmt.Errorf("%w: notification %s", ErrNotificationNotFound, cmd.NotificationID)
		}
		return Notification{}, err
	}
	if notification.UserRef != cmd.UserRef {
		return Notification{}, fmt.Errorf("%w: notification %s", ErrNotificationNotFound, cmd.NotificationID)
	}
	return notification, nil
}

// emailEnabled resolves the user's email opt-in. A missing user record or
// preference defaults to enabled.
func (s *notificationService) emailEnabled(ctx context.Context, userRef string) bool {
	if s.users == nil {
		return true
	}
	user, err := s.users.FindByID(ctx, userRef)
	if err != nil {
		return true
	}
	return user.NotificationPrefs.EmailEnabled()
}

// sendEmail enqueues the email job best-effort. Failures are recorded on the
// notification's emailStatus and never propagated.
func (s *notificationService) sendEmail(ctx context.Context, notification *Notification, order Order) {
	if s.email == nil {
		return
	}

	now := s.now()
	_, err := s.email.PublishEmailJob(ctx, EmailJobMessage{
		NotificationID: notification.ID,
		UserRef:        notification.UserRef,
		OrderRef:       notification.OrderRef,
		To:             order.Customer.Email,
		Subject:        notification.Title,
		Body:           notification.Message,
		Type:           string(notification.Type),
		QueuedAt:       now,
	})
	if err != nil {
		notification.EmailStatus = domain.EmailStatus{Sent: false, Error: err.Error()}
		s.logger(ctx, "notification.email.failed", map[string]any{
			"notificationId": notification.ID,
			"error":          err.Error(),
		})
	} else {
		notification.EmailStatus = domain.EmailStatus{Sent: true, SentAt: &now}
	}

	if err := s.notifications.Update(ctx, *notification); err != nil {
		s.logger(ctx, "notification.email.status_write_failed", map[string]any{
			"notificationId": notification.ID,
			"error":          err.Error(),
		})
	}
}

// renderTemplate substitutes known values into {placeholder} tokens.
// Unresolved placeholders are left verbatim.
func renderTemplate(template string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		if value, ok := values[name]; ok {
			return value
		}
		return token
	})
}

func formatNotificationAmount(minor int64, currency string) string {
	value := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if currency == "" || strings.EqualFold(currency, "USD") {
		return "$" + value
	}
	return value + " " + strings.ToUpper(currency)
}
