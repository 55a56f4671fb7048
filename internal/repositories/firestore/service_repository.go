package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/lumio-market/api/internal/domain"
	pfirestore "github.com/lumio-market/api/internal/platform/firestore"
	"github.com/lumio-market/api/internal/repositories"
)

const serviceCollection = "services"

// ServiceRepository reads the purchasable catalog from Firestore.
type ServiceRepository struct {
	base *pfirestore.BaseRepository[serviceDocument]
}

// NewServiceRepository constructs a Firestore-backed catalog repository.
func NewServiceRepository(provider *pfirestore.Provider) (*ServiceRepository, error) {
	if provider == nil {
		return nil, errors.New("service repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[serviceDocument](provider, serviceCollection, nil, nil)
	return &ServiceRepository{base: base}, nil
}

var _ repositories.ServiceRepository = (*ServiceRepository)(nil)

// FindByID loads a single catalog entry.
func (r *ServiceRepository) FindByID(ctx context.Context, serviceID string) (domain.Service, error) {
	if r == nil || r.base == nil {
		return domain.Service{}, errors.New("service repository not initialised")
	}
	if strings.TrimSpace(serviceID) == "" {
		return domain.Service{}, errors.New("service id is required")
	}

	doc, err := r.base.Get(ctx, serviceID)
	if err != nil {
		return domain.Service{}, err
	}
	return toDomainService(doc.ID, doc.Data), nil
}

// ListActive returns all purchasable catalog entries ordered by name.
func (r *ServiceRepository) ListActive(ctx context.Context) ([]domain.Service, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("service repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	services := make([]domain.Service, 0, len(docs))
	for _, doc := range docs {
		services = append(services, toDomainService(doc.ID, doc.Data))
	}
	return services, nil
}

type serviceDocument struct {
	Name        string    `firestore:"name"`
	Subtitle    string    `firestore:"subtitle,omitempty"`
	Category    string    `firestore:"category,omitempty"`
	Description string    `firestore:"description,omitempty"`
	Features    []string  `firestore:"features"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	BasePrice   int64     `firestore:"basePrice"`
	Currency    string    `firestore:"currency"`
	IsActive    bool      `firestore:"isActive"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func toDomainService(id string, doc serviceDocument) domain.Service {
	return domain.Service{
		ID:          id,
		Name:        doc.Name,
		Subtitle:    doc.Subtitle,
		Category:    doc.Category,
		Description: doc.Description,
		Features:    doc.Features,
		ImageURL:    doc.ImageURL,
		BasePrice:   doc.BasePrice,
		Currency:    doc.Currency,
		IsActive:    doc.IsActive,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
