package handlers

import (
	"context"
	"net/http"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/payments"
	"github.com/lumio-market/api/internal/platform/requestctx"
	"github.com/lumio-market/api/internal/services"
)

// withTestIdentity injects an authenticated caller, standing in for the auth
// middleware in handler tests.
func withTestIdentity(userID string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithIdentity(r.Context(), requestctx.Identity{
				UserID: userID,
				Roles:  roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type stubOrderService struct {
	order Order
	page  domain.OffsetPage[services.Order]
	err   error

	approval services.PaymentApproval

	createCmd   *services.CreateOrderCommand
	getQuery    *services.GetOrderQuery
	updateCmd   *services.UpdateOrderStatusCommand
	cancelCmd   *services.CancelOrderCommand
	assignCmd   *services.AssignOrderCommand
	startCmd    *services.StartPaymentCommand
	captureCmd  *services.CapturePaymentCommand
	refundCmd   *services.RefundOrderCommand
	noteCmd     *services.AddOrderNoteCommand
	attachCmd   *services.AddAttachmentCommand
	revisionCmd *services.RequestRevisionCommand
	feedbackCmd *services.SubmitFeedbackCommand
	eventCmd    *services.CaptureEventCommand
}

type Order = services.Order

func (s *stubOrderService) Create(_ context.Context, cmd services.CreateOrderCommand) (Order, error) {
	s.createCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) Get(_ context.Context, query services.GetOrderQuery) (Order, error) {
	s.getQuery = &query
	return s.order, s.err
}

func (s *stubOrderService) List(_ context.Context, _ services.OrderListQuery) (domain.OffsetPage[services.Order], error) {
	return s.page, s.err
}

func (s *stubOrderService) UpdateStatus(_ context.Context, cmd services.UpdateOrderStatusCommand) (Order, error) {
	s.updateCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) Cancel(_ context.Context, cmd services.CancelOrderCommand) (Order, error) {
	s.cancelCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) Assign(_ context.Context, cmd services.AssignOrderCommand) (Order, error) {
	s.assignCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) StartPayment(_ context.Context, cmd services.StartPaymentCommand) (services.PaymentApproval, error) {
	s.startCmd = &cmd
	return s.approval, s.err
}

func (s *stubOrderService) CapturePayment(_ context.Context, cmd services.CapturePaymentCommand) (Order, error) {
	s.captureCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) Refund(_ context.Context, cmd services.RefundOrderCommand) (Order, error) {
	s.refundCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) AddNote(_ context.Context, cmd services.AddOrderNoteCommand) (Order, error) {
	s.noteCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) AddAttachment(_ context.Context, cmd services.AddAttachmentCommand) (Order, error) {
	s.attachCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) RequestRevision(_ context.Context, cmd services.RequestRevisionCommand) (Order, error) {
	s.revisionCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) SubmitFeedback(_ context.Context, cmd services.SubmitFeedbackCommand) (Order, error) {
	s.feedbackCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) ApplyCaptureEvent(_ context.Context, cmd services.CaptureEventCommand) error {
	s.eventCmd = &cmd
	return s.err
}

var _ services.OrderService = (*stubOrderService)(nil)

type stubNotificationService struct {
	list         services.NotificationList
	notification services.Notification
	marked       int
	swept        int
	err          error

	readCmd   *services.NotificationReadCommand
	unreadCmd *services.NotificationReadCommand
	deleteCmd *services.NotificationReadCommand
}

func (s *stubNotificationService) Dispatch(_ context.Context, cmd services.DispatchCommand) (services.Notification, error) {
	return s.notification, s.err
}

func (s *stubNotificationService) DispatchTransition(_ context.Context, _ services.TransitionDispatchCommand) (services.Notification, bool, error) {
	return s.notification, true, s.err
}

func (s *stubNotificationService) List(_ context.Context, _ services.NotificationListQuery) (services.NotificationList, error) {
	return s.list, s.err
}

func (s *stubNotificationService) MarkRead(_ context.Context, cmd services.NotificationReadCommand) (services.Notification, error) {
	s.readCmd = &cmd
	return s.notification, s.err
}

func (s *stubNotificationService) MarkUnread(_ context.Context, cmd services.NotificationReadCommand) (services.Notification, error) {
	s.unreadCmd = &cmd
	return s.notification, s.err
}

func (s *stubNotificationService) MarkAllRead(_ context.Context, _ string) (int, error) {
	return s.marked, s.err
}

func (s *stubNotificationService) Delete(_ context.Context, cmd services.NotificationReadCommand) error {
	s.deleteCmd = &cmd
	return s.err
}

func (s *stubNotificationService) SweepExpired(_ context.Context) (int, error) {
	return s.swept, s.err
}

var _ services.NotificationService = (*stubNotificationService)(nil)

type stubCatalogService struct {
	items []services.Service
	item  services.Service
	err   error
}

func (s *stubCatalogService) ListActive(_ context.Context) ([]services.Service, error) {
	return s.items, s.err
}

func (s *stubCatalogService) GetActive(_ context.Context, _ string) (services.Service, error) {
	return s.item, s.err
}

var _ services.CatalogService = (*stubCatalogService)(nil)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(_ context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

type stubWebhookGateway struct {
	verified  bool
	verifyErr error
	verifyReq *payments.WebhookVerification
}

func (g *stubWebhookGateway) CreateOrder(_ context.Context, _ payments.CreateOrderRequest) (payments.CreateOrderResult, error) {
	return payments.CreateOrderResult{}, nil
}

func (g *stubWebhookGateway) CaptureOrder(_ context.Context, _ string) (payments.CaptureResult, error) {
	return payments.CaptureResult{}, nil
}

func (g *stubWebhookGateway) RefundPayment(_ context.Context, _ payments.RefundRequest) (payments.RefundResult, error) {
	return payments.RefundResult{}, nil
}

func (g *stubWebhookGateway) GetOrderDetails(_ context.Context, _ string) (payments.OrderDetails, error) {
	return payments.OrderDetails{}, nil
}

func (g *stubWebhookGateway) VerifyWebhookSignature(_ context.Context, req payments.WebhookVerification) (bool, error) {
	g.verifyReq = &req
	return g.verified, g.verifyErr
}

var _ payments.Gateway = (*stubWebhookGateway)(nil)

func sampleOrder() Order {
	return Order{
		ID:          "ord_1",
		OrderNumber: "ORD-12345678ABCD",
		Customer: domain.CustomerSnapshot{
			UserRef:   "user-1",
			FirstName: "Ada",
			LastName:  "Okafor",
			Email:     "ada@example.com",
		},
		Service: domain.ServiceSnapshot{
			ServiceRef: "svc_logo",
			Name:       "Logo Design",
		},
		Project: domain.ProjectDetails{
			Description: "Company logo refresh",
			Timeline:    domain.TimelineRush,
		},
		Pricing: domain.Pricing{Subtotal: 15000, Tax: 1500, Total: 16500, Currency: "USD", TimelineAdjustment: 50},
		Payment: domain.OrderPayment{Method: "paypal", Status: domain.PaymentStatusPending},
		Status:  domain.OrderStatusPending,
	}
}
