package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lumio-market/api/internal/repositories"
)

// ErrServiceNotFound indicates the catalog entry is missing or not purchasable.
var ErrServiceNotFound = errors.New("catalog: service not found")

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Services repositories.ServiceRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	services repositories.ServiceRepository
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Services == nil {
		return nil, errors.New("catalog service: service repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{services: deps.Services, logger: logger}, nil
}

func (s *catalogService) ListActive(ctx context.Context) ([]Service, error) {
	services, err := s.services.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return services, nil
}

// GetActive resolves a service ID to a purchasable catalog entry. Inactive
// entries are indistinguishable from missing ones to the caller.
func (s *catalogService) GetActive(ctx context.Context, serviceID string) (Service, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return Service{}, fmt.Errorf("%w: empty service id", ErrServiceNotFound)
	}

	service, err := s.services.FindByID(ctx, serviceID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Service{}, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
		}
		return Service{}, err
	}
	if !service.IsActive {
		return Service{}, fmt.Errorf("%w: %s is inactive", ErrServiceNotFound, serviceID)
	}
	return service, nil
}
