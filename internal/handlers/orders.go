package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/platform/auth"
	"github.com/lumio-market/api/internal/platform/httpx"
	"github.com/lumio-market/api/internal/platform/pagination"
	"github.com/lumio-market/api/internal/platform/requestctx"
	"github.com/lumio-market/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

type createOrderRequest struct {
	ServiceID    string `json:"serviceId"`
	CustomerInfo struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		Company   string `json:"company"`
	} `json:"customerInfo"`
	ProjectDetails struct {
		ProjectDescription     string `json:"projectDescription"`
		Timeline               string `json:"timeline"`
		AdditionalRequirements string `json:"additionalRequirements"`
	} `json:"projectDetails"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type addNoteRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type addAttachmentRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type requestRevisionRequest struct {
	Description string `json:"description"`
}

type submitFeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.Require(auth.RoleUser, auth.RoleAdmin))
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/history", h.listHistory)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}/notes", h.addNote)
	r.Post("/{orderID}/attachments", h.addAttachment)
	r.Post("/{orderID}/revisions", h.requestRevision)
	r.Post("/{orderID}/feedback", h.submitFeedback)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		ActorID:   identity.UserID,
		ServiceID: strings.TrimSpace(req.ServiceID),
		Customer: domain.CustomerSnapshot{
			FirstName: strings.TrimSpace(req.CustomerInfo.FirstName),
			LastName:  strings.TrimSpace(req.CustomerInfo.LastName),
			Email:     strings.TrimSpace(req.CustomerInfo.Email),
			Phone:     strings.TrimSpace(req.CustomerInfo.Phone),
			Company:   strings.TrimSpace(req.CustomerInfo.Company),
		},
		Description:    req.ProjectDetails.ProjectDescription,
		Timeline:       domain.Timeline(strings.TrimSpace(req.ProjectDetails.Timeline)),
		AdditionalReqs: req.ProjectDetails.AdditionalRequirements,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"order":       buildOrderPayload(order),
		"orderNumber": order.OrderNumber,
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		CustomerRef: identity.UserID,
		Page:        domain.PageRequest{Page: params.Page, Limit: params.Limit},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		query.Status = &status
	}

	page, err := h.orders.List(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":     items,
		"pagination": buildPagination(page.Page),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, services.GetOrderQuery{
		OrderID:      orderID,
		ActorID:      identity.UserID,
		ActorIsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, services.GetOrderQuery{
		OrderID:      orderID,
		ActorID:      identity.UserID,
		ActorIsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	history := make([]statusHistoryPayload, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history = append(history, statusHistoryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"statusHistory": history})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: identity.UserID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) addNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req addNoteRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.AddNote(ctx, services.AddOrderNoteCommand{
		OrderID:      orderID,
		Message:      req.Message,
		NoteType:     req.Type,
		ActorID:      identity.UserID,
		ActorIsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) addAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req addAttachmentRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.AddAttachment(ctx, services.AddAttachmentCommand{
		OrderID:      orderID,
		Name:         req.Name,
		URL:          req.URL,
		ActorID:      identity.UserID,
		ActorIsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) requestRevision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req requestRevisionRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.RequestRevision(ctx, services.RequestRevisionCommand{
		OrderID:     orderID,
		ActorID:     identity.UserID,
		Description: req.Description,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) submitFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req submitFeedbackRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.SubmitFeedback(ctx, services.SubmitFeedbackCommand{
		OrderID: orderID,
		ActorID: identity.UserID,
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

// Shared request plumbing ----------------------------------------------------

func requireIdentity(ctx context.Context, w http.ResponseWriter) (requestctx.Identity, bool) {
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return requestctx.Identity{}, false
	}
	return identity, true
}

func requireOrderID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func decodeOrFail(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSONBody(r, maxOrderBodySize, dst); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		}
		return false
	}
	return true
}

// Payload construction -------------------------------------------------------

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	ServiceName string `json:"serviceName"`
	Status      string `json:"status"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
	CreatedAt   string `json:"createdAt"`
}

type orderPayload struct {
	ID            string                 `json:"id"`
	OrderNumber   string                 `json:"orderNumber"`
	Customer      customerPayload        `json:"customer"`
	Service       serviceSnapshotPayload `json:"service"`
	Project       projectPayload         `json:"project"`
	Pricing       pricingPayload         `json:"pricing"`
	Payment       paymentPayload         `json:"payment"`
	Status        string                 `json:"status"`
	StatusHistory []statusHistoryPayload `json:"statusHistory"`
	AssignedTo    string                 `json:"assignedTo,omitempty"`
	Notes         []notePayload          `json:"notes,omitempty"`
	Attachments   []attachmentPayload    `json:"attachments,omitempty"`
	Revisions     []revisionPayload      `json:"revisions,omitempty"`
	Feedback      *feedbackPayload       `json:"feedback,omitempty"`
	CreatedAt     string                 `json:"createdAt"`
	UpdatedAt     string                 `json:"updatedAt"`
}

type customerPayload struct {
	UserRef   string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

type serviceSnapshotPayload struct {
	ServiceRef string   `json:"serviceId"`
	Name       string   `json:"name"`
	Subtitle   string   `json:"subtitle,omitempty"`
	Category   string   `json:"category,omitempty"`
	Features   []string `json:"features,omitempty"`
	ImageURL   string   `json:"imageUrl,omitempty"`
}

type projectPayload struct {
	Description            string `json:"projectDescription"`
	Timeline               string `json:"timeline"`
	AdditionalRequirements string `json:"additionalRequirements,omitempty"`
	StartDate              string `json:"startDate,omitempty"`
	ExpectedDeliveryDate   string `json:"expectedDeliveryDate,omitempty"`
	ActualDeliveryDate     string `json:"actualDeliveryDate,omitempty"`
}

type pricingPayload struct {
	Subtotal           int64  `json:"subtotal"`
	Tax                int64  `json:"tax"`
	Total              int64  `json:"total"`
	Currency           string `json:"currency"`
	TimelineAdjustment int    `json:"timelineAdjustment"`
}

type paymentPayload struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	PaidAt        string `json:"paidAt,omitempty"`
	RefundedAt    string `json:"refundedAt,omitempty"`
	RefundAmount  int64  `json:"refundAmount,omitempty"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Note      string `json:"note,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

type notePayload struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	AuthorRef  string `json:"authorId"`
	AuthorKind string `json:"authorKind"`
	Type       string `json:"type,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

type attachmentPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	UploadedBy string `json:"uploadedBy"`
	CreatedAt  string `json:"createdAt"`
}

type revisionPayload struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	RequestedBy string `json:"requestedBy"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	ResolvedAt  string `json:"resolvedAt,omitempty"`
}

type feedbackPayload struct {
	Rating      int    `json:"rating"`
	Comment     string `json:"comment,omitempty"`
	SubmittedAt string `json:"submittedAt"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		ServiceName: order.Service.Name,
		Status:      string(order.Status),
		Total:       order.Pricing.Total,
		Currency:    order.Pricing.Currency,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Customer: customerPayload{
			UserRef:   order.Customer.UserRef,
			FirstName: order.Customer.FirstName,
			LastName:  order.Customer.LastName,
			Email:     order.Customer.Email,
			Phone:     order.Customer.Phone,
			Company:   order.Customer.Company,
		},
		Service: serviceSnapshotPayload{
			ServiceRef: order.Service.ServiceRef,
			Name:       order.Service.Name,
			Subtitle:   order.Service.Subtitle,
			Category:   order.Service.Category,
			Features:   order.Service.Features,
			ImageURL:   order.Service.ImageURL,
		},
		Project: projectPayload{
			Description:            order.Project.Description,
			Timeline:               string(order.Project.Timeline),
			AdditionalRequirements: order.Project.AdditionalRequirements,
			StartDate:              formatTimePtr(order.Project.StartDate),
			ExpectedDeliveryDate:   formatTimePtr(order.Project.ExpectedDeliveryDate),
			ActualDeliveryDate:     formatTimePtr(order.Project.ActualDeliveryDate),
		},
		Pricing: pricingPayload{
			Subtotal:           order.Pricing.Subtotal,
			Tax:                order.Pricing.Tax,
			Total:              order.Pricing.Total,
			Currency:           order.Pricing.Currency,
			TimelineAdjustment: order.Pricing.TimelineAdjustment,
		},
		Payment: paymentPayload{
			Method:        order.Payment.Method,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			PaidAt:        formatTimePtr(order.Payment.PaidAt),
			RefundedAt:    formatTimePtr(order.Payment.RefundedAt),
			RefundAmount:  order.Payment.RefundAmount,
		},
		Status:        string(order.Status),
		StatusHistory: make([]statusHistoryPayload, 0, len(order.StatusHistory)),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}

	if order.AssignedTo != nil {
		payload.AssignedTo = *order.AssignedTo
	}

	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusHistoryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}

	for _, note := range order.Notes {
		payload.Notes = append(payload.Notes, notePayload{
			ID:         note.ID,
			Message:    note.Message,
			AuthorRef:  note.AuthorRef,
			AuthorKind: string(note.AuthorKind),
			Type:       note.Type,
			CreatedAt:  formatTime(note.CreatedAt),
		})
	}

	for _, attachment := range order.Attachments {
		payload.Attachments = append(payload.Attachments, attachmentPayload{
			ID:         attachment.ID,
			Name:       attachment.Name,
			URL:        attachment.URL,
			UploadedBy: attachment.UploadedBy,
			CreatedAt:  formatTime(attachment.CreatedAt),
		})
	}

	for _, revision := range order.Revisions {
		payload.Revisions = append(payload.Revisions, revisionPayload{
			ID:          revision.ID,
			Description: revision.Description,
			RequestedBy: revision.RequestedBy,
			Status:      revision.Status,
			CreatedAt:   formatTime(revision.CreatedAt),
			ResolvedAt:  formatTimePtr(revision.ResolvedAt),
		})
	}

	if order.Feedback != nil {
		payload.Feedback = &feedbackPayload{
			Rating:      order.Feedback.Rating,
			Comment:     order.Feedback.Comment,
			SubmittedAt: formatTime(order.Feedback.SubmittedAt),
		}
	}

	return payload
}

// writeOrderError maps order service errors to the JSON error envelope.
// Conflicts surface as 400 with a descriptive message, matching the
// storefront's existing contract.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrServiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", "service not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
