package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumio-market/api/internal/platform/httpx"
	"github.com/lumio-market/api/internal/services"
)

// CatalogHandlers exposes the public service catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /services endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listServices)
	r.Get("/{serviceID}", h.getService)
}

func (h *CatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.catalog.ListActive(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]servicePayload, 0, len(items))
	for _, svc := range items {
		payload = append(payload, buildServicePayload(svc))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"services": payload})
}

func (h *CatalogHandlers) getService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID := strings.TrimSpace(chi.URLParam(r, "serviceID"))

	svc, err := h.catalog.GetActive(ctx, serviceID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"service": buildServicePayload(svc)})
}

type servicePayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	BasePrice   int64    `json:"basePrice"`
	Currency    string   `json:"currency"`
}

func buildServicePayload(svc services.Service) servicePayload {
	return servicePayload{
		ID:          svc.ID,
		Name:        svc.Name,
		Subtitle:    svc.Subtitle,
		Category:    svc.Category,
		Description: svc.Description,
		Features:    svc.Features,
		ImageURL:    svc.ImageURL,
		BasePrice:   svc.BasePrice,
		Currency:    svc.Currency,
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, services.ErrServiceNotFound) {
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", "service not found", http.StatusNotFound))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load services", http.StatusInternalServerError))
}
