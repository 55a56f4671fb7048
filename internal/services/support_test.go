package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/payments"
	"github.com/lumio-market/api/internal/repositories"
)

type repoError struct {
	notFound bool
	conflict bool
	msg      string
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return false }

var _ repositories.RepositoryError = (*repoError)(nil)

type memOrderRepo struct {
	orders    map[string]domain.Order
	insertErr error
	updateErr error
	updates   int
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]domain.Order{}}
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.orders[order.ID]; ok {
		return &repoError{conflict: true, msg: "order exists"}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.orders[order.ID]; !ok {
		return &repoError{notFound: true, msg: "order missing"}
	}
	r.orders[order.ID] = order
	r.updates++
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, &repoError{notFound: true, msg: "order missing"}
	}
	return order, nil
}

func (r *memOrderRepo) FindByOrderNumber(_ context.Context, number string) (domain.Order, error) {
	for _, order := range r.orders {
		if order.OrderNumber == number {
			return order, nil
		}
	}
	return domain.Order{}, &repoError{notFound: true, msg: "order missing"}
}

func (r *memOrderRepo) FindByProviderRef(_ context.Context, ref string) (domain.Order, error) {
	for _, order := range r.orders {
		if order.Payment.ProviderRef == ref {
			return order, nil
		}
	}
	return domain.Order{}, &repoError{notFound: true, msg: "order missing"}
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.OffsetPage[domain.Order], error) {
	var matched []domain.Order
	for _, order := range r.orders {
		if filter.CustomerRef != "" && order.Customer.UserRef != filter.CustomerRef {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = 20
	}
	start := (page.Page - 1) * page.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return domain.OffsetPage[domain.Order]{
		Items: matched[start:end],
		Page: domain.PageInfo{
			Page:  page.Page,
			Limit: page.Limit,
			Total: int64(len(matched)),
		},
	}, nil
}

var _ repositories.OrderRepository = (*memOrderRepo)(nil)

type memNotificationRepo struct {
	notifications map[string]domain.Notification
	insertErr     error
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{notifications: map[string]domain.Notification{}}
}

func (r *memNotificationRepo) Insert(_ context.Context, n domain.Notification) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.notifications[n.ID]; ok {
		return &repoError{conflict: true, msg: "notification exists"}
	}
	r.notifications[n.ID] = n
	return nil
}

func (r *memNotificationRepo) Update(_ context.Context, n domain.Notification) error {
	if _, ok := r.notifications[n.ID]; !ok {
		return &repoError{notFound: true, msg: "notification missing"}
	}
	r.notifications[n.ID] = n
	return nil
}

func (r *memNotificationRepo) FindByID(_ context.Context, id string) (domain.Notification, error) {
	n, ok := r.notifications[id]
	if !ok {
		return domain.Notification{}, &repoError{notFound: true, msg: "notification missing"}
	}
	return n, nil
}

func (r *memNotificationRepo) ListByUser(_ context.Context, userRef string, filter repositories.NotificationListFilter) (domain.OffsetPage[domain.Notification], error) {
	var matched []domain.Notification
	for _, n := range r.notifications {
		if n.UserRef != userRef {
			continue
		}
		if filter.UnreadOnly && n.Status != domain.NotificationUnread {
			continue
		}
		if !filter.UnreadOnly && filter.Status != nil && n.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && n.Type != *filter.Type {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = 20
	}
	start := (page.Page - 1) * page.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return domain.OffsetPage[domain.Notification]{
		Items: matched[start:end],
		Page: domain.PageInfo{
			Page:  page.Page,
			Limit: page.Limit,
			Total: int64(len(matched)),
		},
	}, nil
}

func (r *memNotificationRepo) CountUnread(_ context.Context, userRef string) (int64, error) {
	var count int64
	for _, n := range r.notifications {
		if n.UserRef == userRef && n.Status == domain.NotificationUnread {
			count++
		}
	}
	return count, nil
}

func (r *memNotificationRepo) Delete(_ context.Context, id string) error {
	delete(r.notifications, id)
	return nil
}

func (r *memNotificationRepo) DeleteReadOlderThan(_ context.Context, cutoff time.Time, limit int) (int, error) {
	deleted := 0
	for id, n := range r.notifications {
		if deleted >= limit {
			break
		}
		if n.Status == domain.NotificationRead && n.CreatedAt.Before(cutoff) {
			delete(r.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ repositories.NotificationRepository = (*memNotificationRepo)(nil)

type stubUserRepo struct {
	users map[string]domain.UserProfile
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, &repoError{notFound: true, msg: "user missing"}
	}
	user, ok := r.users[id]
	if !ok {
		return domain.UserProfile{}, &repoError{notFound: true, msg: "user missing"}
	}
	return user, nil
}

type stubEmailPublisher struct {
	published []EmailJobMessage
	err       error
}

func (p *stubEmailPublisher) PublishEmailJob(_ context.Context, message EmailJobMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, message)
	return fmt.Sprintf("msg-%d", len(p.published)), nil
}

type stubCatalog struct {
	services map[string]domain.Service
}

func (c *stubCatalog) ListActive(_ context.Context) ([]domain.Service, error) {
	var out []domain.Service
	for _, svc := range c.services {
		if svc.IsActive {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (c *stubCatalog) GetActive(_ context.Context, id string) (domain.Service, error) {
	svc, ok := c.services[id]
	if !ok || !svc.IsActive {
		return domain.Service{}, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	return svc, nil
}

type stubGateway struct {
	createResult  payments.CreateOrderResult
	createErr     error
	createCalls   int
	lastCreate    payments.CreateOrderRequest
	captureResult payments.CaptureResult
	captureErr    error
	captureCalls  int
	refundResult  payments.RefundResult
	refundErr     error
	refundCalls   int
}

func (g *stubGateway) CreateOrder(_ context.Context, req payments.CreateOrderRequest) (payments.CreateOrderResult, error) {
	g.createCalls++
	g.lastCreate = req
	if g.createErr != nil {
		return payments.CreateOrderResult{}, g.createErr
	}
	if !g.createResult.Success && g.createResult.Declined == nil {
		return payments.CreateOrderResult{
			Success:     true,
			ProviderRef: "PAY-STUB",
			ApprovalURL: "https://paypal.test/approve/PAY-STUB",
			Status:      "CREATED",
		}, nil
	}
	return g.createResult, nil
}

func (g *stubGateway) CaptureOrder(_ context.Context, _ string) (payments.CaptureResult, error) {
	g.captureCalls++
	if g.captureErr != nil {
		return payments.CaptureResult{}, g.captureErr
	}
	return g.captureResult, nil
}

func (g *stubGateway) RefundPayment(_ context.Context, _ payments.RefundRequest) (payments.RefundResult, error) {
	g.refundCalls++
	if g.refundErr != nil {
		return payments.RefundResult{}, g.refundErr
	}
	return g.refundResult, nil
}

func (g *stubGateway) GetOrderDetails(_ context.Context, ref string) (payments.OrderDetails, error) {
	return payments.OrderDetails{ProviderRef: ref}, nil
}

func (g *stubGateway) VerifyWebhookSignature(_ context.Context, _ payments.WebhookVerification) (bool, error) {
	return true, nil
}

var _ payments.Gateway = (*stubGateway)(nil)

type stubNotifier struct {
	dispatched  []DispatchCommand
	transitions []TransitionDispatchCommand
	err         error
}

func (n *stubNotifier) Dispatch(_ context.Context, cmd DispatchCommand) (Notification, error) {
	n.dispatched = append(n.dispatched, cmd)
	if n.err != nil {
		return Notification{}, n.err
	}
	return Notification{ID: "ntf_stub", OrderRef: cmd.OrderID, Type: cmd.Type}, nil
}

func (n *stubNotifier) DispatchTransition(_ context.Context, cmd TransitionDispatchCommand) (Notification, bool, error) {
	n.transitions = append(n.transitions, cmd)
	if n.err != nil {
		return Notification{}, false, n.err
	}
	return Notification{ID: "ntf_stub"}, true, nil
}

func (n *stubNotifier) List(_ context.Context, _ NotificationListQuery) (NotificationList, error) {
	return NotificationList{}, nil
}

func (n *stubNotifier) MarkRead(_ context.Context, _ NotificationReadCommand) (Notification, error) {
	return Notification{}, nil
}

func (n *stubNotifier) MarkUnread(_ context.Context, _ NotificationReadCommand) (Notification, error) {
	return Notification{}, nil
}

func (n *stubNotifier) MarkAllRead(_ context.Context, _ string) (int, error) { return 0, nil }

func (n *stubNotifier) Delete(_ context.Context, _ NotificationReadCommand) error { return nil }

func (n *stubNotifier) SweepExpired(_ context.Context) (int, error) { return 0, nil }

var _ NotificationService = (*stubNotifier)(nil)

func paymentsCaptureSuccess(transactionID string, amount int64, at time.Time) payments.CaptureResult {
	return payments.CaptureResult{
		Success:       true,
		TransactionID: transactionID,
		Status:        "COMPLETED",
		Amount:        amount,
		Currency:      "USD",
		CapturedAt:    &at,
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func testService(basePrice int64) domain.Service {
	return domain.Service{
		ID:        "svc_logo",
		Name:      "Logo Design",
		Category:  "branding",
		BasePrice: basePrice,
		Currency:  "USD",
		IsActive:  true,
	}
}
