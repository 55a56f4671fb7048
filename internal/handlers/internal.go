package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumio-market/api/internal/platform/httpx"
	"github.com/lumio-market/api/internal/services"
)

// InternalHandlers exposes operational endpoints intended for schedulers and
// other trusted internal callers; the /internal group carries its own
// middleware.
type InternalHandlers struct {
	notifications services.NotificationService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(notifications services.NotificationService) *InternalHandlers {
	return &InternalHandlers{notifications: notifications}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/notifications:sweep", h.sweepNotifications)
}

func (h *InternalHandlers) sweepNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deleted, err := h.notifications.SweepExpired(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("sweep_failed", "notification sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"deleted": deleted})
}
