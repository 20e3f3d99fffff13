package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	store *Store[domain.User]
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{store: NewStore[domain.User](db, domain.ErrUserNotFound)}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := r.store.Create(ctx, u)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrUserExists
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.store.GetByID(ctx, id)
}

// ListByRole returns active users holding role, ordered by name.
func (r *UserRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return r.store.FindMany(ctx,
		Where("role = ? AND is_active = ?", role, true),
		OrderBy("full_name ASC"),
	)
}
