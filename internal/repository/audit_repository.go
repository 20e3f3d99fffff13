package repository

import (
	"context"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"gorm.io/gorm"
)

type AuditRepository struct {
	store *Store[domain.AuditLog]
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{store: NewStore[domain.AuditLog](db, gorm.ErrRecordNotFound)}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	return r.store.Create(ctx, entry)
}

// ListForResource returns the trail of one resource, oldest first.
func (r *AuditRepository) ListForResource(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error) {
	return r.store.FindMany(ctx,
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID),
		OrderBy("occurred_at ASC"),
	)
}
