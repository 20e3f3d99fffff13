package repository

import (
	"context"
	"errors"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/consultation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConsultationRepository struct {
	store *Store[consultation.Session]
}

var _ consultation.Repository = (*ConsultationRepository)(nil)

func NewConsultationRepository(db *gorm.DB) *ConsultationRepository {
	return &ConsultationRepository{store: NewStore[consultation.Session](db, consultation.ErrSessionNotFound)}
}

func withAddenda(db *gorm.DB) *gorm.DB {
	return db.Preload("Addenda", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	})
}

func (r *ConsultationRepository) Create(ctx context.Context, s *consultation.Session) error {
	err := r.store.Create(ctx, s)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return consultation.ErrSessionExists
	}
	return err
}

func (r *ConsultationRepository) GetByID(ctx context.Context, id uuid.UUID) (*consultation.Session, error) {
	return r.store.GetByID(ctx, id, withAddenda)
}

func (r *ConsultationRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*consultation.Session, error) {
	return r.store.FindOne(ctx, withAddenda, Where("appointment_id = ?", appointmentID))
}

// Save updates the session row only; addenda are written through AddAddendum.
func (r *ConsultationRepository) Save(ctx context.Context, s *consultation.Session) error {
	return r.store.DB(ctx).Omit("Addenda").Save(s).Error
}

func (r *ConsultationRepository) AddAddendum(ctx context.Context, a *consultation.Addendum) error {
	return r.store.DB(ctx).Create(a).Error
}
