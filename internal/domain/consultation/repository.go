package consultation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Session) error
	// GetByID loads the session with its addenda.
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	AddAddendum(ctx context.Context, a *Addendum) error
}
