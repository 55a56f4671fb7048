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

const notificationCollection = "notifications"

// NotificationRepository persists per-user notifications in a single
// top-level collection keyed by notification ID.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationCollection, nil, nil)
	return &NotificationRepository{base: base}, nil
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

// Insert creates the notification document, failing when the ID already exists.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification id is required")
	}
	_, err := r.base.Create(ctx, notification.ID, fromDomainNotification(notification))
	return err
}

// Update overwrites the full notification document.
func (r *NotificationRepository) Update(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification id is required")
	}
	_, err := r.base.Set(ctx, notification.ID, fromDomainNotification(notification))
	return err
}

// FindByID loads a single notification.
func (r *NotificationRepository) FindByID(ctx context.Context, notificationID string) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notificationID) == "" {
		return domain.Notification{}, errors.New("notification id is required")
	}

	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	return toDomainNotification(doc.ID, doc.Data), nil
}

// ListByUser returns an offset page of one user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userRef string, filter repositories.NotificationListFilter) (domain.OffsetPage[domain.Notification], error) {
	if r == nil || r.base == nil {
		return domain.OffsetPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(userRef) == "" {
		return domain.OffsetPage[domain.Notification]{}, errors.New("user ref is required")
	}

	page := filter.Page
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = 20
	}

	constrain := func(q firestore.Query) firestore.Query {
		q = q.Where("userRef", "==", userRef)
		if filter.UnreadOnly {
			q = q.Where("status", "==", string(domain.NotificationUnread))
		} else if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.Type != nil {
			q = q.Where("type", "==", string(*filter.Type))
		}
		return q
	}

	total, err := r.base.Count(ctx, constrain)
	if err != nil {
		return domain.OffsetPage[domain.Notification]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = constrain(q)
		q = q.OrderBy("createdAt", firestore.Desc)
		return q.Offset((page.Page - 1) * page.Limit).Limit(page.Limit)
	})
	if err != nil {
		return domain.OffsetPage[domain.Notification]{}, err
	}

	notifications := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		notifications = append(notifications, toDomainNotification(doc.ID, doc.Data))
	}

	return domain.OffsetPage[domain.Notification]{
		Items: notifications,
		Page: domain.PageInfo{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      total,
			TotalPages: totalPages(total, page.Limit),
		},
	}, nil
}

// CountUnread returns the number of unread notifications for the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userRef string) (int64, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(userRef) == "" {
		return 0, errors.New("user ref is required")
	}
	return r.base.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userRef", "==", userRef).Where("status", "==", string(domain.NotificationUnread))
	})
}

// Delete removes the notification document.
func (r *NotificationRepository) Delete(ctx context.Context, notificationID string) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notificationID) == "" {
		return errors.New("notification id is required")
	}
	return r.base.Delete(ctx, notificationID)
}

// DeleteReadOlderThan removes read notifications created before the cutoff,
// up to limit documents, and reports how many were deleted.
func (r *NotificationRepository) DeleteReadOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("notification repository not initialised")
	}
	if limit <= 0 {
		return 0, errors.New("limit must be positive")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.NotificationRead)).
			Where("createdAt", "<", cutoff).
			Limit(limit)
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, doc := range docs {
		if err := r.base.Delete(ctx, doc.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

type notificationDocument struct {
	UserRef     string                 `firestore:"userRef"`
	OrderRef    string                 `firestore:"orderRef,omitempty"`
	Type        string                 `firestore:"type"`
	Title       string                 `firestore:"title"`
	Message     string                 `firestore:"message"`
	Status      string                 `firestore:"status"`
	Priority    string                 `firestore:"priority,omitempty"`
	Data        map[string]any         `firestore:"data,omitempty"`
	Channels    channelsDocument       `firestore:"channels"`
	EmailStatus emailStatusDocument    `firestore:"emailStatus"`
	ReadAt      *time.Time             `firestore:"readAt,omitempty"`
	CreatedAt   time.Time              `firestore:"createdAt"`
}

type channelsDocument struct {
	InApp bool `firestore:"inApp"`
	Email bool `firestore:"email"`
	SMS   bool `firestore:"sms"`
}

type emailStatusDocument struct {
	Sent   bool       `firestore:"sent"`
	SentAt *time.Time `firestore:"sentAt,omitempty"`
	Error  string     `firestore:"error,omitempty"`
}

func fromDomainNotification(notification domain.Notification) notificationDocument {
	return notificationDocument{
		UserRef:  notification.UserRef,
		OrderRef: notification.OrderRef,
		Type:     string(notification.Type),
		Title:    notification.Title,
		Message:  notification.Message,
		Status:   string(notification.Status),
		Priority: notification.Priority,
		Data:     notification.Data,
		Channels: channelsDocument{
			InApp: notification.Channels.InApp,
			Email: notification.Channels.Email,
			SMS:   notification.Channels.SMS,
		},
		EmailStatus: emailStatusDocument{
			Sent:   notification.EmailStatus.Sent,
			SentAt: notification.EmailStatus.SentAt,
			Error:  notification.EmailStatus.Error,
		},
		ReadAt:    notification.ReadAt,
		CreatedAt: notification.CreatedAt,
	}
}

func toDomainNotification(id string, doc notificationDocument) domain.Notification {
	return domain.Notification{
		ID:       id,
		UserRef:  doc.UserRef,
		OrderRef: doc.OrderRef,
		Type:     domain.NotificationType(doc.Type),
		Title:    doc.Title,
		Message:  doc.Message,
		Status:   domain.NotificationStatus(doc.Status),
		Priority: doc.Priority,
		Data:     doc.Data,
		Channels: domain.NotificationChannels{
			InApp: doc.Channels.InApp,
			Email: doc.Channels.Email,
			SMS:   doc.Channels.SMS,
		},
		EmailStatus: domain.EmailStatus{
			Sent:   doc.EmailStatus.Sent,
			SentAt: doc.EmailStatus.SentAt,
			Error:  doc.EmailStatus.Error,
		},
		ReadAt:    doc.ReadAt,
		CreatedAt: doc.CreatedAt,
	}
}
