package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/queue"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AppointmentRepository struct {
	store *Store[appointment.Appointment]
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{store: NewStore[appointment.Appointment](db, appointment.ErrAppointmentNotFound)}
}

func (r *AppointmentRepository) Create(ctx context.Context, a *appointment.Appointment) error {
	return r.store.Create(ctx, a)
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return r.store.GetByID(ctx, id)
}

func (r *AppointmentRepository) GetByCheckInCode(ctx context.Context, code string) (*appointment.Appointment, error) {
	return r.store.FindOne(ctx, Where("check_in_code = ?", code))
}

func (r *AppointmentRepository) SaveStatus(ctx context.Context, a *appointment.Appointment, prev appointment.Status) error {
	n, err := r.store.Update(ctx, map[string]any{
		"status":              a.Status,
		"confirmed_at":        a.ConfirmedAt,
		"checked_in_at":       a.CheckedInAt,
		"started_at":          a.StartedAt,
		"completed_at":        a.CompletedAt,
		"cancelled_at":        a.CancelledAt,
		"cancellation_reason": a.CancellationReason,
	}, ByID(a.ID), Where("status = ?", prev))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: appointment is no longer %s", appointment.ErrInvalidStatusTransition, prev)
	}
	return nil
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	filters := listFilters(q)

	total, err := r.store.Count(ctx, filters...)
	if err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	items, err := r.store.FindMany(ctx, append(filters,
		OrderBy("start_time ASC"),
		Page(q.Page, q.PageSize),
	)...)
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}

	return &appointment.PagedAppointments{
		Appointments: items,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   int(math.Ceil(float64(total) / float64(q.PageSize))),
	}, nil
}

func listFilters(q *appointment.ListAppointmentsQuery) []Scope {
	var scopes []Scope
	if q.UserID != nil {
		scopes = append(scopes, Where("user_id = ?", *q.UserID))
	}
	if q.GurujiID != nil {
		scopes = append(scopes, Where("guruji_id = ?", *q.GurujiID))
	}
	if q.Status != nil {
		scopes = append(scopes, Where("status = ?", *q.Status))
	}
	if q.DateFrom != nil {
		scopes = append(scopes, Where("date >= ?", appointment.CalendarDate(*q.DateFrom)))
	}
	if q.DateTo != nil {
		scopes = append(scopes, Where("date <= ?", appointment.CalendarDate(*q.DateTo)))
	}
	return scopes
}

func (r *AppointmentRepository) FindForPractitionerDay(ctx context.Context, gurujiID uuid.UUID, dayStart, dayEnd time.Time) ([]*appointment.Appointment, error) {
	return r.store.FindMany(ctx,
		blockingOverlap(gurujiID, dayStart, dayEnd),
		OrderBy("start_time ASC"),
	)
}

func (r *AppointmentRepository) CreateChecked(ctx context.Context, a *appointment.Appointment) error {
	return r.store.Transaction(ctx, func(tx *Store[appointment.Appointment]) error {
		if err := checkConflicts(ctx, tx, a, nil); err != nil {
			return err
		}
		return tx.Create(ctx, a)
	})
}

func (r *AppointmentRepository) RescheduleChecked(ctx context.Context, a *appointment.Appointment) error {
	return r.store.Transaction(ctx, func(tx *Store[appointment.Appointment]) error {
		if err := checkConflicts(ctx, tx, a, &a.ID); err != nil {
			return err
		}
		n, err := tx.Update(ctx, map[string]any{
			"guruji_id":  a.GurujiID,
			"date":       a.Date,
			"start_time": a.StartTime,
			"end_time":   a.EndTime,
		}, ByID(a.ID), Where("status IN ?", appointment.ReschedulableStatuses()))
		if err != nil {
			return err
		}
		if n == 0 {
			return appointment.ErrNotReschedulable
		}
		return nil
	})
}

// checkConflicts must run inside the transaction that writes a. On PostgreSQL
// it first takes a transaction-scoped advisory lock on the practitioner's day,
// so concurrent bookings for that day queue behind each other. SQLite allows a
// single writer; a concurrent writer fails with SQLITE_BUSY instead.
func checkConflicts(ctx context.Context, tx *Store[appointment.Appointment], a *appointment.Appointment, excludeID *uuid.UUID) error {
	if a.GurujiID == nil {
		return nil
	}

	db := tx.DB(ctx)
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(?)", scheduleLockKey(*a.GurujiID, a.Date)).Error; err != nil {
			return fmt.Errorf("locking practitioner schedule: %w", err)
		}
	}

	existing, err := tx.FindMany(ctx, blockingOverlap(*a.GurujiID, a.StartTime, a.EndTime))
	if err != nil {
		return fmt.Errorf("loading overlapping appointments: %w", err)
	}

	if conflicts := appointment.Conflicts(existing, a.StartTime, a.EndTime, excludeID); len(conflicts) > 0 {
		return &appointment.ConflictError{Conflicts: conflicts}
	}
	return nil
}

func blockingOverlap(gurujiID uuid.UUID, start, end time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("guruji_id = ? AND status NOT IN ? AND start_time < ? AND end_time > ?",
			gurujiID, appointment.NonBlockingStatuses(), end.UTC(), start.UTC())
	}
}

func scheduleLockKey(gurujiID uuid.UUID, date time.Time) int64 {
	h := fnv.New64a()
	h.Write(gurujiID[:])
	h.Write([]byte(appointment.CalendarDate(date).Format("2006-01-02")))
	return int64(h.Sum64())
}

func (r *AppointmentRepository) CountByStatus(ctx context.Context, from, to time.Time, gurujiID *uuid.UUID) ([]appointment.StatusCount, error) {
	q := r.store.DB(ctx).
		Model(&appointment.Appointment{}).
		Select("status, COUNT(*) AS count").
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC())
	if gurujiID != nil {
		q = q.Where("guruji_id = ?", *gurujiID)
	}

	var rows []appointment.StatusCount
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting appointments by status: %w", err)
	}
	return rows, nil
}

func (r *AppointmentRepository) FindEndedBefore(ctx context.Context, cutoff time.Time, statuses ...appointment.Status) ([]*appointment.Appointment, error) {
	return r.store.FindMany(ctx,
		Where("status IN ? AND end_time < ?", statuses, cutoff.UTC()),
		OrderBy("end_time ASC"),
	)
}

// DeleteCancelledBefore also removes queue entries left behind by the deleted rows.
func (r *AppointmentRepository) DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.store.Transaction(ctx, func(tx *Store[appointment.Appointment]) error {
		cutoffDate := appointment.CalendarDate(cutoff)
		cancelled := Where("status = ? AND date < ?", appointment.StatusCancelled, cutoffDate)

		ids := tx.DB(ctx).Model(&appointment.Appointment{}).Select("id").
			Where("status = ? AND date < ?", appointment.StatusCancelled, cutoffDate)
		if err := tx.DB(ctx).Where("appointment_id IN (?)", ids).Delete(&queue.Entry{}).Error; err != nil {
			return fmt.Errorf("deleting queue entries: %w", err)
		}

		n, err := tx.Delete(ctx, cancelled)
		if err != nil {
			return fmt.Errorf("deleting cancelled appointments: %w", err)
		}
		deleted = n
		return nil
	})
	return deleted, err
}
