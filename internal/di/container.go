package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumio-market/api/internal/payments"
	"github.com/lumio-market/api/internal/platform/config"
	"github.com/lumio-market/api/internal/repositories"
	"github.com/lumio-market/api/internal/services"
)

// Repositories bundles the persistence contracts the service layer depends on.
// Production wiring provides Firestore-backed implementations, while tests can
// supply in-memory fakes.
type Repositories struct {
	Orders        repositories.OrderRepository
	Notifications repositories.NotificationRepository
	Services      repositories.ServiceRepository
	Users         repositories.UserRepository
	Health        repositories.HealthRepository
}

// Infrastructure carries the external adapters the services are wired against.
type Infrastructure struct {
	Gateway payments.Gateway
	Email   services.EmailJobPublisher
	Logger  *zap.Logger
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog       services.CatalogService
	Orders        services.OrderService
	Notifications services.NotificationService
	System        services.SystemService
}

// Container wires repositories, services, and supporting infrastructure for runtime use.
type Container struct {
	Config   config.Config
	Services Services
}

// NewContainer constructs the runtime dependencies.
func NewContainer(_ context.Context, cfg config.Config, repos Repositories, infra Infrastructure) (*Container, error) {
	svc, err := buildServices(cfg, repos, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Services: svc,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, infra Infrastructure) (Services, error) {
	var svc Services

	if repos.Orders == nil {
		return Services{}, errors.New("order repository is required")
	}
	if repos.Services == nil {
		return Services{}, errors.New("service repository is required")
	}
	if repos.Notifications == nil {
		return Services{}, errors.New("notification repository is required")
	}
	if infra.Gateway == nil {
		return Services{}, errors.New("payment gateway is required")
	}

	base := infra.Logger
	if base == nil {
		base = zap.NewNop()
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Services: repos.Services,
		Logger:   eventLogger(base.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: repos.Notifications,
		Orders:        repos.Orders,
		Users:         repos.Users,
		Email:         infra.Email,
		RetentionAge:  cfg.Notifications.RetentionAge,
		Logger:        eventLogger(base.Named("notifications")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        repos.Orders,
		Catalog:       catalogSvc,
		Gateway:       infra.Gateway,
		Notifications: notificationSvc,
		Logger:        eventLogger(base.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if repos.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			Health: repos.Health,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// eventLogger adapts a zap logger to the event callback shape the services expect.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
