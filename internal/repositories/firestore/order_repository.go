package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lumio-market/api/internal/domain"
	pfirestore "github.com/lumio-market/api/internal/platform/firestore"
	"github.com/lumio-market/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists the order aggregate in Firestore. The whole
// document is read and written on every mutation; notes, attachments,
// revisions, and history are embedded arrays.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Insert creates the order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	_, err := r.base.Create(ctx, order.ID, fromDomainOrder(order))
	return err
}

// Update overwrites the full order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	_, err := r.base.Set(ctx, order.ID, fromDomainOrder(order))
	return err
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindByOrderNumber locates the order by its customer-facing order number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order number is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_order_number", status.Error(codes.NotFound, "order not found"))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

// FindByProviderRef locates the order that carries the payment provider reference.
func (r *OrderRepository) FindByProviderRef(ctx context.Context, providerRef string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	ref := strings.TrimSpace(providerRef)
	if ref == "" {
		return domain.Order{}, errors.New("provider ref is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment.providerRef", "==", ref).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_provider_ref", status.Error(codes.NotFound, "order not found for provider ref"))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

// List returns an offset page of orders, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.OffsetPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.OffsetPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	page := filter.Page
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = 20
	}

	constrain := func(q firestore.Query) firestore.Query {
		if filter.CustomerRef != "" {
			q = q.Where("customer.userRef", "==", filter.CustomerRef)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		return q
	}

	total, err := r.base.Count(ctx, constrain)
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = constrain(q)
		q = q.OrderBy("createdAt", firestore.Desc)
		return q.Offset((page.Page - 1) * page.Limit).Limit(page.Limit)
	})
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}

	return domain.OffsetPage[domain.Order]{
		Items: orders,
		Page: domain.PageInfo{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      total,
			TotalPages: totalPages(total, page.Limit),
		},
	}, nil
}

type orderDocument struct {
	OrderNumber   string                 `firestore:"orderNumber"`
	Customer      customerDocument       `firestore:"customer"`
	Service       serviceSnapDocument    `firestore:"service"`
	Project       projectDocument        `firestore:"project"`
	Pricing       pricingDocument        `firestore:"pricing"`
	Payment       paymentDocument        `firestore:"payment"`
	Status        string                 `firestore:"status"`
	StatusHistory []statusEntryDocument  `firestore:"statusHistory"`
	AssignedTo    *string                `firestore:"assignedTo"`
	Notes         []noteDocument         `firestore:"notes"`
	Attachments   []attachmentDocument   `firestore:"attachments"`
	Revisions     []revisionDocument     `firestore:"revisions"`
	Feedback      *feedbackDocument      `firestore:"feedback,omitempty"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

type customerDocument struct {
	UserRef   string `firestore:"userRef"`
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Phone     string `firestore:"phone,omitempty"`
	Company   string `firestore:"company,omitempty"`
}

type serviceSnapDocument struct {
	ServiceRef string   `firestore:"serviceRef"`
	Name       string   `firestore:"name"`
	Subtitle   string   `firestore:"subtitle,omitempty"`
	Category   string   `firestore:"category,omitempty"`
	Features   []string `firestore:"features"`
	ImageURL   string   `firestore:"imageUrl,omitempty"`
}

type projectDocument struct {
	Description            string     `firestore:"description"`
	Timeline               string     `firestore:"timeline"`
	AdditionalRequirements string     `firestore:"additionalRequirements,omitempty"`
	StartDate              *time.Time `firestore:"startDate,omitempty"`
	ExpectedDeliveryDate   *time.Time `firestore:"expectedDeliveryDate,omitempty"`
	ActualDeliveryDate     *time.Time `firestore:"actualDeliveryDate,omitempty"`
}

type pricingDocument struct {
	Subtotal           int64  `firestore:"subtotal"`
	Tax                int64  `firestore:"tax"`
	Total              int64  `firestore:"total"`
	Currency           string `firestore:"currency"`
	TimelineAdjustment int    `firestore:"timelineAdjustment"`
}

type paymentDocument struct {
	Method        string     `firestore:"method,omitempty"`
	Status        string     `firestore:"status"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	ProviderRef   string     `firestore:"providerRef,omitempty"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
	RefundedAt    *time.Time `firestore:"refundedAt,omitempty"`
	RefundAmount  int64      `firestore:"refundAmount,omitempty"`
}

type statusEntryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Note      string    `firestore:"note,omitempty"`
	UpdatedBy string    `firestore:"updatedBy,omitempty"`
}

type noteDocument struct {
	ID         string    `firestore:"id"`
	Message    string    `firestore:"message"`
	AuthorRef  string    `firestore:"authorRef"`
	AuthorKind string    `firestore:"authorKind"`
	Type       string    `firestore:"type,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type attachmentDocument struct {
	ID         string    `firestore:"id"`
	Name       string    `firestore:"name"`
	URL        string    `firestore:"url"`
	UploadedBy string    `firestore:"uploadedBy"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type revisionDocument struct {
	ID          string     `firestore:"id"`
	Description string     `firestore:"description"`
	RequestedBy string     `firestore:"requestedBy"`
	Status      string     `firestore:"status"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	ResolvedAt  *time.Time `firestore:"resolvedAt,omitempty"`
}

type feedbackDocument struct {
	Rating      int       `firestore:"rating"`
	Comment     string    `firestore:"comment,omitempty"`
	SubmittedAt time.Time `firestore:"submittedAt"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: order.OrderNumber,
		Customer: customerDocument{
			UserRef:   order.Customer.UserRef,
			FirstName: order.Customer.FirstName,
			LastName:  order.Customer.LastName,
			Email:     order.Customer.Email,
			Phone:     order.Customer.Phone,
			Company:   order.Customer.Company,
		},
		Service: serviceSnapDocument{
			ServiceRef: order.Service.ServiceRef,
			Name:       order.Service.Name,
			Subtitle:   order.Service.Subtitle,
			Category:   order.Service.Category,
			Features:   order.Service.Features,
			ImageURL:   order.Service.ImageURL,
		},
		Project: projectDocument{
			Description:            order.Project.Description,
			Timeline:               string(order.Project.Timeline),
			AdditionalRequirements: order.Project.AdditionalRequirements,
			StartDate:              order.Project.StartDate,
			ExpectedDeliveryDate:   order.Project.ExpectedDeliveryDate,
			ActualDeliveryDate:     order.Project.ActualDeliveryDate,
		},
		Pricing: pricingDocument{
			Subtotal:           order.Pricing.Subtotal,
			Tax:                order.Pricing.Tax,
			Total:              order.Pricing.Total,
			Currency:           order.Pricing.Currency,
			TimelineAdjustment: order.Pricing.TimelineAdjustment,
		},
		Payment: paymentDocument{
			Method:        order.Payment.Method,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			ProviderRef:   order.Payment.ProviderRef,
			PaidAt:        order.Payment.PaidAt,
			RefundedAt:    order.Payment.RefundedAt,
			RefundAmount:  order.Payment.RefundAmount,
		},
		Status:     string(order.Status),
		AssignedTo: order.AssignedTo,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}

	doc.StatusHistory = make([]statusEntryDocument, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusEntryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	for _, note := range order.Notes {
		doc.Notes = append(doc.Notes, noteDocument{
			ID:         note.ID,
			Message:    note.Message,
			AuthorRef:  note.AuthorRef,
			AuthorKind: string(note.AuthorKind),
			Type:       note.Type,
			CreatedAt:  note.CreatedAt,
		})
	}
	for _, attachment := range order.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDocument{
			ID:         attachment.ID,
			Name:       attachment.Name,
			URL:        attachment.URL,
			UploadedBy: attachment.UploadedBy,
			CreatedAt:  attachment.CreatedAt,
		})
	}
	for _, revision := range order.Revisions {
		doc.Revisions = append(doc.Revisions, revisionDocument{
			ID:          revision.ID,
			Description: revision.Description,
			RequestedBy: revision.RequestedBy,
			Status:      revision.Status,
			CreatedAt:   revision.CreatedAt,
			ResolvedAt:  revision.ResolvedAt,
		})
	}
	if order.Feedback != nil {
		doc.Feedback = &feedbackDocument{
			Rating:      order.Feedback.Rating,
			Comment:     order.Feedback.Comment,
			SubmittedAt: order.Feedback.SubmittedAt,
		}
	}
	return doc
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		Customer: domain.CustomerSnapshot{
			UserRef:   doc.Customer.UserRef,
			FirstName: doc.Customer.FirstName,
			LastName:  doc.Customer.LastName,
			Email:     doc.Customer.Email,
			Phone:     doc.Customer.Phone,
			Company:   doc.Customer.Company,
		},
		Service: domain.ServiceSnapshot{
			ServiceRef: doc.Service.ServiceRef,
			Name:       doc.Service.Name,
			Subtitle:   doc.Service.Subtitle,
			Category:   doc.Service.Category,
			Features:   doc.Service.Features,
			ImageURL:   doc.Service.ImageURL,
		},
		Project: domain.ProjectDetails{
			Description:            doc.Project.Description,
			Timeline:               domain.Timeline(doc.Project.Timeline),
			AdditionalRequirements: doc.Project.AdditionalRequirements,
			StartDate:              doc.Project.StartDate,
			ExpectedDeliveryDate:   doc.Project.ExpectedDeliveryDate,
			ActualDeliveryDate:     doc.Project.ActualDeliveryDate,
		},
		Pricing: domain.Pricing{
			Subtotal:           doc.Pricing.Subtotal,
			Tax:                doc.Pricing.Tax,
			Total:              doc.Pricing.Total,
			Currency:           doc.Pricing.Currency,
			TimelineAdjustment: doc.Pricing.TimelineAdjustment,
		},
		Payment: domain.OrderPayment{
			Method:        doc.Payment.Method,
			Status:        domain.PaymentStatus(doc.Payment.Status),
			TransactionID: doc.Payment.TransactionID,
			ProviderRef:   doc.Payment.ProviderRef,
			PaidAt:        doc.Payment.PaidAt,
			RefundedAt:    doc.Payment.RefundedAt,
			RefundAmount:  doc.Payment.RefundAmount,
		},
		Status:     domain.OrderStatus(doc.Status),
		AssignedTo: doc.AssignedTo,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}

	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	for _, note := range doc.Notes {
		order.Notes = append(order.Notes, domain.OrderNote{
			ID:         note.ID,
			Message:    note.Message,
			AuthorRef:  note.AuthorRef,
			AuthorKind: domain.AuthorKind(note.AuthorKind),
			Type:       note.Type,
			CreatedAt:  note.CreatedAt,
		})
	}
	for _, attachment := range doc.Attachments {
		order.Attachments = append(order.Attachments, domain.OrderAttachment{
			ID:         attachment.ID,
			Name:       attachment.Name,
			URL:        attachment.URL,
			UploadedBy: attachment.UploadedBy,
			CreatedAt:  attachment.CreatedAt,
		})
	}
	for _, revision := range doc.Revisions {
		order.Revisions = append(order.Revisions, domain.OrderRevision{
			ID:          revision.ID,
			Description: revision.Description,
			RequestedBy: revision.RequestedBy,
			Status:      revision.Status,
			CreatedAt:   revision.CreatedAt,
			ResolvedAt:  revision.ResolvedAt,
		})
	}
	if doc.Feedback != nil {
		order.Feedback = &domain.OrderFeedback{
			Rating:      doc.Feedback.Rating,
			Comment:     doc.Feedback.Comment,
			SubmittedAt: doc.Feedback.SubmittedAt,
		}
	}
	return order
}

func totalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return int(pages)
}
