package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/queue"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QueueRepository struct {
	store *Store[queue.Entry]
}

var _ queue.Repository = (*QueueRepository)(nil)

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{store: NewStore[queue.Entry](db, queue.ErrEntryNotFound)}
}

func (r *QueueRepository) Create(ctx context.Context, e *queue.Entry) error {
	return r.store.Create(ctx, e)
}

func (r *QueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*queue.Entry, error) {
	return r.store.GetByID(ctx, id)
}

func (r *QueueRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*queue.Entry, error) {
	return r.store.FindOne(ctx, Where("appointment_id = ?", appointmentID))
}

func (r *QueueRepository) Save(ctx context.Context, e *queue.Entry) error {
	return r.store.Save(ctx, e)
}

func (r *QueueRepository) ListForDay(ctx context.Context, gurujiID uuid.UUID, date time.Time) ([]*queue.Entry, error) {
	return r.store.FindMany(ctx,
		Where("guruji_id = ? AND date = ?", gurujiID, appointment.CalendarDate(date)),
		OrderBy("position ASC"),
	)
}

func (r *QueueRepository) CountWaiting(ctx context.Context, date time.Time, gurujiID *uuid.UUID) (int64, error) {
	scopes := []Scope{Where("date = ? AND status = ?", appointment.CalendarDate(date), queue.StatusWaiting)}
	if gurujiID != nil {
		scopes = append(scopes, Where("guruji_id = ?", *gurujiID))
	}
	return r.store.Count(ctx, scopes...)
}

// Append numbers e after the last entry of its practitioner's day. The unique
// (guruji_id, date, position) index rejects a concurrent append that read the
// same maximum.
func (r *QueueRepository) Append(ctx context.Context, e *queue.Entry) error {
	e.Date = appointment.CalendarDate(e.Date)

	err := r.store.Transaction(ctx, func(tx *Store[queue.Entry]) error {
		var last int
		if err := tx.DB(ctx).Model(&queue.Entry{}).
			Select("COALESCE(MAX(position), 0)").
			Where("guruji_id = ? AND date = ?", e.GurujiID, e.Date).
			Scan(&last).Error; err != nil {
			return fmt.Errorf("reading last queue position: %w", err)
		}

		e.Position = last + 1
		return tx.Create(ctx, e)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if _, lookupErr := r.GetByAppointmentID(ctx, e.AppointmentID); lookupErr == nil {
			return queue.ErrAlreadyQueued
		}
	}
	return err
}
