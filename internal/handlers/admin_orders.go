package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumio-market/api/internal/domain"
	"github.com/lumio-market/api/internal/platform/auth"
	"github.com/lumio-market/api/internal/platform/httpx"
	"github.com/lumio-market/api/internal/platform/pagination"
	"github.com/lumio-market/api/internal/services"
)

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type assignOrderRequest struct {
	AssigneeID string `json:"assigneeId"`
}

type refundOrderRequest struct {
	OrderNumber string `json:"orderNumber"`
	Amount      *int64 `json:"amount"`
	Reason      string `json:"reason"`
}

// AdminOrderHandlers exposes the staff-side order management endpoints.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.Require(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}/status", h.updateStatus)
	r.Post("/orders/{orderID}:assign", h.assignOrder)
	r.Post("/orders:refund", h.refundOrder)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		CustomerRef: strings.TrimSpace(r.URL.Query().Get("userId")),
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

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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
		ActorIsAdmin: true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
		Note:    req.Note,
		ActorID: identity.UserID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) assignOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req assignOrderRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.Assign(ctx, services.AssignOrderCommand{
		OrderID:     orderID,
		AssigneeRef: req.AssigneeID,
		ActorID:     identity.UserID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req refundOrderRequest
	if !decodeOrFail(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.Refund(ctx, services.RefundOrderCommand{
		OrderNumber: req.OrderNumber,
		Amount:      req.Amount,
		Reason:      req.Reason,
		ActorID:     identity.UserID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}
