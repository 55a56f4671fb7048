package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/lumio-market/api/internal/domain"
)

type stubServiceRepo struct {
	services map[string]domain.Service
}

func (r *stubServiceRepo) FindByID(_ context.Context, id string) (domain.Service, error) {
	svc, ok := r.services[id]
	if !ok {
		return domain.Service{}, &repoError{notFound: true, msg: "service missing"}
	}
	return svc, nil
}

func (r *stubServiceRepo) ListActive(_ context.Context) ([]domain.Service, error) {
	var out []domain.Service
	for _, svc := range r.services {
		if svc.IsActive {
			out = append(out, svc)
		}
	}
	return out, nil
}

func newTestCatalog(t *testing.T, services map[string]domain.Service) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{Services: &stubServiceRepo{services: services}})
	if err != nil {
		t.Fatalf("NewCatalogService returned error: %v", err)
	}
	return svc
}

func TestGetActiveReturnsService(t *testing.T) {
	catalog := newTestCatalog(t, map[string]domain.Service{
		"svc_logo": testService(10000),
	})

	svc, err := catalog.GetActive(context.Background(), "svc_logo")
	if err != nil {
		t.Fatalf("GetActive returned error: %v", err)
	}
	if svc.Name != "Logo Design" || svc.BasePrice != 10000 {
		t.Fatalf("unexpected service %+v", svc)
	}
}

func TestGetActiveHidesInactiveService(t *testing.T) {
	inactive := testService(10000)
	inactive.IsActive = false
	catalog := newTestCatalog(t, map[string]domain.Service{
		"svc_logo": inactive,
	})

	_, err := catalog.GetActive(context.Background(), "svc_logo")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("inactive service must look missing, got %v", err)
	}
}

func TestGetActiveMissingService(t *testing.T) {
	catalog := newTestCatalog(t, nil)

	_, err := catalog.GetActive(context.Background(), "svc_nope")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}

	_, err = catalog.GetActive(context.Background(), "  ")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("blank id must look missing, got %v", err)
	}
}

func TestListActiveFiltersInactive(t *testing.T) {
	inactive := testService(10000)
	inactive.ID = "svc_old"
	inactive.IsActive = false
	catalog := newTestCatalog(t, map[string]domain.Service{
		"svc_logo": testService(10000),
		"svc_old":  inactive,
	})

	services, err := catalog.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(services) != 1 || services[0].ID != "svc_logo" {
		t.Fatalf("unexpected listing %+v", services)
	}
}
