package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/lumio-market/api/internal/domain"
	pfirestore "github.com/lumio-market/api/internal/platform/firestore"
	"github.com/lumio-market/api/internal/repositories"
)

const userCollection = "users"

// UserRepository reads the user slice the order and notification core needs.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// FindByID loads a single user profile.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return toDomainUser(doc.ID, doc.Data), nil
}

type userDocument struct {
	DisplayName       string          `firestore:"displayName,omitempty"`
	Email             string          `firestore:"email"`
	Phone             string          `firestore:"phone,omitempty"`
	Company           string          `firestore:"company,omitempty"`
	Roles             []string        `firestore:"roles"`
	IsActive          bool            `firestore:"isActive"`
	NotificationPrefs map[string]bool `firestore:"notificationPreferences,omitempty"`
	CreatedAt         time.Time       `firestore:"createdAt"`
	UpdatedAt         time.Time       `firestore:"updatedAt"`
}

func toDomainUser(id string, doc userDocument) domain.UserProfile {
	return domain.UserProfile{
		ID:                id,
		DisplayName:       doc.DisplayName,
		Email:             doc.Email,
		Phone:             doc.Phone,
		Company:           doc.Company,
		Roles:             doc.Roles,
		IsActive:          doc.IsActive,
		NotificationPrefs: domain.NotificationPreferences(doc.NotificationPrefs),
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}
