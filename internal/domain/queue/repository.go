package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Entry, error)
	Save(ctx context.Context, e *Entry) error

	// ListForDay returns every entry of the practitioner's day, in position order.
	ListForDay(ctx context.Context, gurujiID uuid.UUID, date time.Time) ([]*Entry, error)

	// CountWaiting counts WAITING entries on date, for one practitioner or all.
	CountWaiting(ctx context.Context, date time.Time, gurujiID *uuid.UUID) (int64, error)

	// Append assigns the next position for the practitioner's day and inserts e.
	Append(ctx context.Context, e *Entry) error
}
