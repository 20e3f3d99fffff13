package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByCheckInCode(ctx context.Context, code string) (*Appointment, error)
	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// SaveStatus writes a's status, lifecycle timestamps and cancellation
	// reason, but only while the stored status is still prev. A row that moved
	// on in the meantime yields ErrInvalidStatusTransition.
	SaveStatus(ctx context.Context, a *Appointment, prev Status) error

	// FindForPractitionerDay returns the practitioner's blocking appointments
	// intersecting [dayStart, dayEnd), ordered by start time.
	FindForPractitionerDay(ctx context.Context, gurujiID uuid.UUID, dayStart, dayEnd time.Time) ([]*Appointment, error)

	// CreateChecked inserts a only if it overlaps no blocking appointment of its
	// practitioner. Check and insert share one transaction; a *ConflictError is
	// returned on overlap and nothing is written.
	CreateChecked(ctx context.Context, a *Appointment) error

	// RescheduleChecked writes a's practitioner, date and interval after the
	// same overlap check as CreateChecked, excluding a itself. Only those
	// columns change, and only while the stored row is still reschedulable;
	// otherwise ErrNotReschedulable is returned and nothing is written.
	RescheduleChecked(ctx context.Context, a *Appointment) error

	// CountByStatus groups appointments starting in [from, to).
	CountByStatus(ctx context.Context, from, to time.Time, gurujiID *uuid.UUID) ([]StatusCount, error)

	// FindEndedBefore returns appointments in one of statuses whose end time is before cutoff.
	FindEndedBefore(ctx context.Context, cutoff time.Time, statuses ...Status) ([]*Appointment, error)

	// DeleteCancelledBefore hard-deletes cancelled appointments dated before cutoff.
	DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
