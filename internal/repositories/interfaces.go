package repositories

import (
	"context"
	"time"

	domain "github.com/lumio-market/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows order list queries.
type OrderListFilter struct {
	CustomerRef string
	Status      *domain.OrderStatus
	Page        domain.PageRequest
}

// OrderRepository persists the order aggregate. Reads and writes cover the
// whole document; sub-collections are embedded.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByProviderRef(ctx context.Context, providerRef string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.OffsetPage[domain.Order], error)
}

// NotificationListFilter narrows notification list queries for one user.
type NotificationListFilter struct {
	Status     *domain.NotificationStatus
	Type       *domain.NotificationType
	UnreadOnly bool
	Page       domain.PageRequest
}

// NotificationRepository persists per-user notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	Update(ctx context.Context, notification domain.Notification) error
	FindByID(ctx context.Context, notificationID string) (domain.Notification, error)
	ListByUser(ctx context.Context, userRef string, filter NotificationListFilter) (domain.OffsetPage[domain.Notification], error)
	CountUnread(ctx context.Context, userRef string) (int64, error)
	Delete(ctx context.Context, notificationID string) error
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// ServiceRepository exposes the purchasable catalog.
type ServiceRepository interface {
	FindByID(ctx context.Context, serviceID string) (domain.Service, error)
	ListActive(ctx context.Context) ([]domain.Service, error)
}

// UserRepository reads the slice of the user record the order core needs.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
