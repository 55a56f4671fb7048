package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	domain "github.com/lumio-market/api/internal/domain"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}[A-Z0-9]{4}$`)

func newTestOrderService(t *testing.T, repo *memOrderRepo, gateway *stubGateway, notifier *stubNotifier, at time.Time) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:        repo,
		Catalog:       &stubCatalog{services: map[string]domain.Service{"svc_logo": testService(10000)}},
		Gateway:       gateway,
		Notifications: notifier,
		Clock:         fixedClock(at),
	})
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func createTestOrder(t *testing.T, svc OrderService, timeline domain.Timeline) Order {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateOrderCommand{
		ActorID:   "user-1",
		ServiceID: "svc_logo",
		Customer: domain.CustomerSnapshot{
			FirstName: "Ada",
			LastName:  "Okafor",
			Email:     "ada@example.com",
		},
		Description: "Company logo refresh",
		Timeline:    timeline,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return order
}

func TestCreateOrderPricingAndFirstHistoryEntry(t *testing.T) {
	repo := newMemOrderRepo()
	notifier := &stubNotifier{}
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestOrderService(t, repo, &stubGateway{}, notifier, at)

	order := createTestOrder(t, svc, domain.TimelineRush)

	if order.Pricing.Subtotal != 15000 || order.Pricing.Tax != 1500 || order.Pricing.Total != 16500 {
		t.Fatalf("unexpected pricing %+v", order.Pricing)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected status %q", order.Status)
	}
	if order.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected payment status %q", order.Payment.Status)
	}
	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Fatalf("order number %q does not match expected format", order.OrderNumber)
	}
	if len(order.StatusHistory) != 1 {
		t.Fatalf("expected one history entry, got %d", len(order.StatusHistory))
	}
	first := order.StatusHistory[0]
	if first.Status != domain.OrderStatusPending || first.Note != "Order created" {
		t.Fatalf("unexpected first history entry %+v", first)
	}
	if order.Customer.UserRef != "user-1" {
		t.Fatalf("customer snapshot missing user ref: %+v", order.Customer)
	}
	if len(notifier.dispatched) != 1 || notifier.dispatched[0].Type != domain.NotificationOrderCreated {
		t.Fatalf("expected order_created dispatch, got %+v", notifier.dispatched)
	}
}

func TestCreateOrderUnknownServiceRejected(t *testing.T) {
	svc := newTestOrderService(t, newMemOrderRepo(), &stubGateway{}, &stubNotifier{}, time.Now())

	_, err := svc.Create(context.Background(), CreateOrderCommand{
		ActorID:   "user-1",
		ServiceID: "svc_missing",
		Customer: domain.CustomerSnapshot{
			FirstName: "Ada",
			LastName:  "Okafor",
			Email:     "ada@example.com",
		},
		Description: "anything",
		Timeline:    domain.TimelineStandard,
	})
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestOrderNumbersUniqueWithinSameMillisecond(t *testing.T) {
	gen := newOrderNumberGenerator()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		number := gen.Next(at)
		if seen[number] {
			t.Fatalf("duplicate order number %q after %d generations", number, i)
		}
		if !orderNumberPattern.MatchString(number) {
			t.Fatalf("order number %q does not match expected format", number)
		}
		seen[number] = true
	}
}

func TestStatusAlwaysMatchesLastHistoryEntry(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, &stubGateway{}, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineStandard)

	ctx := context.Background()
	sequence := []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusInProgress,
		domain.OrderStatusUnderReview,
		domain.OrderStatusCompleted,
	}

	historyLen := len(order.StatusHistory)
	for _, status := range sequence {
		updated, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{
			OrderID: order.ID,
			Status:  status,
			ActorID: "admin-1",
		})
		if err != nil {
			t.Fatalf("UpdateStatus(%s) returned error: %v", status, err)
		}
		last, ok := updated.CurrentHistoryStatus()
		if !ok || last != updated.Status {
			t.Fatalf("status %q diverged from last history entry %q", updated.Status, last)
		}
		if len(updated.StatusHistory) != historyLen+1 {
			t.Fatalf("history length %d, expected %d", len(updated.StatusHistory), historyLen+1)
		}
		historyLen = len(updated.StatusHistory)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := newTestOrderService(t, newMemOrderRepo(), &stubGateway{}, &stubNotifier{}, time.Now())

	_, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_x",
		Status:  domain.OrderStatus("shipped"),
		ActorID: "admin-1",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestCustomerCancellationGuard(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, &stubGateway{}, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineStandard)

	ctx := context.Background()
	if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusInProgress, ActorID: "admin-1"}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}

	_, err := svc.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, ActorID: "user-1"})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict for in_progress cancellation, got %v", err)
	}

	// Back to a cancellable state.
	if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusPending, ActorID: "admin-1"}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, ActorID: "user-1", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected status %q", cancelled.Status)
	}
}

func TestCancelByNonOwnerLooksLikeMissingOrder(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, &stubGateway{}, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineStandard)

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, ActorID: "someone-else"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestNotificationFailureDoesNotFailStatusUpdate(t *testing.T) {
	repo := newMemOrderRepo()
	notifier := &stubNotifier{err: errors.New("smtp down")}
	svc := newTestOrderService(t, repo, &stubGateway{}, notifier, time.Now())
	order := createTestOrder(t, svc, domain.TimelineStandard)

	updated, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusConfirmed,
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus must not fail on notification errors, got %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status %q", updated.Status)
	}
	if len(notifier.transitions) != 1 {
		t.Fatalf("expected transition dispatch attempt, got %d", len(notifier.transitions))
	}
}

func TestDeliveryScheduleSetOnceOnFirstInProgress(t *testing.T) {
	repo := newMemOrderRepo()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestOrderService(t, repo, &stubGateway{}, &stubNotifier{}, at)
	order := createTestOrder(t, svc, domain.TimelineFast)

	ctx := context.Background()
	updated, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusInProgress, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if updated.Project.StartDate == nil || !updated.Project.StartDate.Equal(at) {
		t.Fatalf("unexpected start date %v", updated.Project.StartDate)
	}
	want := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	if updated.Project.ExpectedDeliveryDate == nil || !updated.Project.ExpectedDeliveryDate.Equal(want) {
		t.Fatalf("expected delivery %v, got %v", want, updated.Project.ExpectedDeliveryDate)
	}

	// Leaving and re-entering in_progress must not move the schedule.
	if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusUnderReview, ActorID: "admin-1"}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	again, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusInProgress, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if !again.Project.ExpectedDeliveryDate.Equal(want) {
		t.Fatalf("expected delivery date to be stable, got %v", again.Project.ExpectedDeliveryDate)
	}
}

func TestRefundRequiresCompletedPaymentBeforeProviderCall(t *testing.T) {
	repo := newMemOrderRepo()
	gateway := &stubGateway{}
	svc := newTestOrderService(t, repo, gateway, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineStandard)

	_, err := svc.Refund(context.Background(), RefundOrderCommand{
		OrderNumber: order.OrderNumber,
		Reason:      "customer request",
		ActorID:     "admin-1",
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if gateway.refundCalls != 0 {
		t.Fatalf("refund must be rejected before any provider call, got %d calls", gateway.refundCalls)
	}
}

func TestCapturePaymentForcesConfirmed(t *testing.T) {
	repo := newMemOrderRepo()
	capturedAt := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	gateway := &stubGateway{
		captureResult: paymentsCaptureSuccess("CAP-1", 16500, capturedAt),
	}
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, repo, gateway, notifier, time.Now())
	order := createTestOrder(t, svc, domain.TimelineRush)

	updated, err := svc.CapturePayment(context.Background(), CapturePaymentCommand{
		ProviderRef: "PAY-1",
		OrderNumber: order.OrderNumber,
		ActorID:     "user-1",
	})
	if err != nil {
		t.Fatalf("CapturePayment returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status %q", updated.Status)
	}
	if updated.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected payment status %q", updated.Payment.Status)
	}
	if updated.Payment.TransactionID != "CAP-1" || updated.Payment.ProviderRef != "PAY-1" {
		t.Fatalf("unexpected payment references %+v", updated.Payment)
	}
	if updated.Payment.PaidAt == nil || !updated.Payment.PaidAt.Equal(capturedAt) {
		t.Fatalf("unexpected paidAt %v", updated.Payment.PaidAt)
	}
	last, _ := updated.CurrentHistoryStatus()
	if last != domain.OrderStatusConfirmed {
		t.Fatalf("capture must append a confirmed history entry, last is %q", last)
	}

	// Double capture is a conflict.
	if _, err := svc.CapturePayment(context.Background(), CapturePaymentCommand{ProviderRef: "PAY-1", OrderNumber: order.OrderNumber, ActorID: "user-1"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict for double capture, got %v", err)
	}
}

func TestCapturePaymentByNonOwnerLooksLikeMissingOrder(t *testing.T) {
	repo := newMemOrderRepo()
	gateway := &stubGateway{
		captureResult: paymentsCaptureSuccess("CAP-1", 16500, time.Now().UTC()),
	}
	svc := newTestOrderService(t, repo, gateway, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineRush)

	_, err := svc.CapturePayment(context.Background(), CapturePaymentCommand{
		ProviderRef: "PAY-1",
		OrderNumber: order.OrderNumber,
		ActorID:     "someone-else",
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for non-owner capture, got %v", err)
	}
	if gateway.captureCalls != 0 {
		t.Fatalf("gateway must not be called for non-owner capture, got %d calls", gateway.captureCalls)
	}
}

func TestOrderLifecycleEndToEnd(t *testing.T) {
	repo := newMemOrderRepo()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	gateway := &stubGateway{captureResult: paymentsCaptureSuccess("CAP-1", 16500, at)}
	svc := newTestOrderService(t, repo, gateway, &stubNotifier{}, at)

	order := createTestOrder(t, svc, domain.TimelineRush)
	if order.Pricing.Subtotal != 15000 || order.Pricing.Tax != 1500 || order.Pricing.Total != 16500 {
		t.Fatalf("unexpected pricing %+v", order.Pricing)
	}

	ctx := context.Background()
	confirmed, err := svc.CapturePayment(ctx, CapturePaymentCommand{ProviderRef: "PAY-1", OrderNumber: order.OrderNumber, ActorID: "user-1"})
	if err != nil {
		t.Fatalf("CapturePayment returned error: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed || confirmed.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected state after capture: %q / %q", confirmed.Status, confirmed.Payment.Status)
	}

	started, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusInProgress, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if started.Project.StartDate == nil {
		t.Fatalf("start date not set on in_progress")
	}
	wantDelivery := started.Project.StartDate.AddDate(0, 0, 3)
	if started.Project.ExpectedDeliveryDate == nil || !started.Project.ExpectedDeliveryDate.Equal(wantDelivery) {
		t.Fatalf("expected delivery %v, got %v", wantDelivery, started.Project.ExpectedDeliveryDate)
	}

	if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusUnderReview, ActorID: "admin-1"}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	completed, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusCompleted, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if completed.Project.ActualDeliveryDate == nil {
		t.Fatalf("actual delivery date not set on completion")
	}

	withFeedback, err := svc.SubmitFeedback(ctx, SubmitFeedbackCommand{OrderID: order.ID, ActorID: "user-1", Rating: 5, Comment: "great work"})
	if err != nil {
		t.Fatalf("SubmitFeedback returned error: %v", err)
	}
	if withFeedback.Feedback == nil || withFeedback.Feedback.Rating != 5 {
		t.Fatalf("unexpected feedback %+v", withFeedback.Feedback)
	}
}

func TestSubmitFeedbackOnlyWhenCompleted(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, &stubGateway{}, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineStandard)

	_, err := svc.SubmitFeedback(context.Background(), SubmitFeedbackCommand{OrderID: order.ID, ActorID: "user-1", Rating: 4})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestRequestRevisionOnlyFromUnderReview(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, &stubGateway{}, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineStandard)

	ctx := context.Background()
	_, err := svc.RequestRevision(ctx, RequestRevisionCommand{OrderID: order.ID, ActorID: "user-1", Description: "bigger logo"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusUnderReview, ActorID: "admin-1"}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	revised, err := svc.RequestRevision(ctx, RequestRevisionCommand{OrderID: order.ID, ActorID: "user-1", Description: "bigger logo"})
	if err != nil {
		t.Fatalf("RequestRevision returned error: %v", err)
	}
	if revised.Status != domain.OrderStatusRevisionRequested {
		t.Fatalf("unexpected status %q", revised.Status)
	}
	if len(revised.Revisions) != 1 || revised.Revisions[0].Description != "bigger logo" {
		t.Fatalf("unexpected revisions %+v", revised.Revisions)
	}
}

func TestAddAttachmentRecordsMetadata(t *testing.T) {
	repo := newMemOrderRepo()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestOrderService(t, repo, &stubGateway{}, &stubNotifier{}, at)
	order := createTestOrder(t, svc, domain.TimelineStandard)

	ctx := context.Background()
	updated, err := svc.AddAttachment(ctx, AddAttachmentCommand{
		OrderID: order.ID,
		Name:    "brief.pdf",
		URL:     "https://files.example.com/brief.pdf",
		ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("AddAttachment returned error: %v", err)
	}
	if len(updated.Attachments) != 1 {
		t.Fatalf("attachments length = %d, want 1", len(updated.Attachments))
	}
	att := updated.Attachments[0]
	if att.ID == "" {
		t.Fatal("attachment id must be assigned")
	}
	if att.Name != "brief.pdf" || att.URL != "https://files.example.com/brief.pdf" || att.UploadedBy != "user-1" {
		t.Fatalf("unexpected attachment %+v", att)
	}

	// Non-owner callers see a missing order, not a permission error.
	_, err = svc.AddAttachment(ctx, AddAttachmentCommand{
		OrderID: order.ID,
		Name:    "notes.txt",
		URL:     "https://files.example.com/notes.txt",
		ActorID: "someone-else",
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for non-owner, got %v", err)
	}

	if _, err := svc.AddAttachment(ctx, AddAttachmentCommand{OrderID: order.ID, Name: "brief.pdf", ActorID: "user-1"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput without url, got %v", err)
	}
}

func TestApplyCaptureEventIdempotent(t *testing.T) {
	repo := newMemOrderRepo()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	gateway := &stubGateway{captureResult: paymentsCaptureSuccess("CAP-1", 16500, at)}
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, repo, gateway, notifier, at)
	order := createTestOrder(t, svc, domain.TimelineStandard)

	ctx := context.Background()
	if _, err := svc.CapturePayment(ctx, CapturePaymentCommand{ProviderRef: "PAY-1", OrderNumber: order.OrderNumber, ActorID: "user-1"}); err != nil {
		t.Fatalf("CapturePayment returned error: %v", err)
	}
	updatesBefore := repo.updates

	// Webhook for an already-applied capture is a no-op.
	if err := svc.ApplyCaptureEvent(ctx, CaptureEventCommand{EventType: "PAYMENT.CAPTURE.COMPLETED", ProviderRef: "PAY-1", TransactionID: "CAP-1"}); err != nil {
		t.Fatalf("ApplyCaptureEvent returned error: %v", err)
	}
	if repo.updates != updatesBefore {
		t.Fatalf("idempotent webhook must not rewrite the order")
	}

	// Refund webhook applies once.
	if err := svc.ApplyCaptureEvent(ctx, CaptureEventCommand{EventType: "PAYMENT.CAPTURE.REFUNDED", ProviderRef: "PAY-1"}); err != nil {
		t.Fatalf("ApplyCaptureEvent returned error: %v", err)
	}
	refunded, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if refunded.Payment.Status != domain.PaymentStatusRefunded || refunded.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected state after refund webhook: %q / %q", refunded.Payment.Status, refunded.Status)
	}
	updatesAfter := repo.updates
	if err := svc.ApplyCaptureEvent(ctx, CaptureEventCommand{EventType: "PAYMENT.CAPTURE.REFUNDED", ProviderRef: "PAY-1"}); err != nil {
		t.Fatalf("ApplyCaptureEvent returned error: %v", err)
	}
	if repo.updates != updatesAfter {
		t.Fatalf("repeated refund webhook must be a no-op")
	}
}

func TestStartPaymentCarriesExactBreakdown(t *testing.T) {
	repo := newMemOrderRepo()
	gateway := &stubGateway{}
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestOrderService(t, repo, gateway, &stubNotifier{}, at)
	order := createTestOrder(t, svc, domain.TimelineRush)

	approval, err := svc.StartPayment(context.Background(), StartPaymentCommand{
		OrderNumber: order.OrderNumber,
		ActorID:     "user-1",
	})
	if err != nil {
		t.Fatalf("StartPayment returned error: %v", err)
	}
	if approval.ProviderRef != "PAY-STUB" || approval.ApprovalURL == "" {
		t.Fatalf("unexpected approval %+v", approval)
	}
	if gateway.createCalls != 1 {
		t.Fatalf("expected one provider call, got %d", gateway.createCalls)
	}
	if gateway.lastCreate.Subtotal != 15000 || gateway.lastCreate.Tax != 1500 || gateway.lastCreate.Total != 16500 {
		t.Fatalf("breakdown not carried exactly: %+v", gateway.lastCreate)
	}

	stored, err := repo.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("order missing after StartPayment: %v", err)
	}
	if stored.Payment.Status != domain.PaymentStatusProcessing || stored.Payment.ProviderRef != "PAY-STUB" {
		t.Fatalf("provider ref not recorded: %+v", stored.Payment)
	}
}

func TestStartPaymentRejectsSettledPayment(t *testing.T) {
	repo := newMemOrderRepo()
	gateway := &stubGateway{captureResult: paymentsCaptureSuccess("CAP-1", 16500, time.Now())}
	svc := newTestOrderService(t, repo, gateway, &stubNotifier{}, time.Now())
	order := createTestOrder(t, svc, domain.TimelineRush)

	if _, err := svc.StartPayment(context.Background(), StartPaymentCommand{OrderNumber: order.OrderNumber, ActorID: "user-1"}); err != nil {
		t.Fatalf("StartPayment returned error: %v", err)
	}
	if _, err := svc.CapturePayment(context.Background(), CapturePaymentCommand{ProviderRef: "PAY-STUB", OrderNumber: order.OrderNumber, ActorID: "user-1"}); err != nil {
		t.Fatalf("CapturePayment returned error: %v", err)
	}

	_, err := svc.StartPayment(context.Background(), StartPaymentCommand{OrderNumber: order.OrderNumber, ActorID: "user-1"})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict after capture, got %v", err)
	}
}
