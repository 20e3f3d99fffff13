package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrSlotUnavailable         = errors.New("requested slot is unavailable")
	ErrInvalidStatus           = errors.New("unknown appointment status")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrInvalidInterval         = errors.New("start time must be before end time")
	ErrOutsideCalendarDay      = errors.New("appointment must start and end within its calendar day")
	ErrScheduledInPast         = errors.New("cannot book an appointment in the past")
	ErrInvalidPriority         = errors.New("invalid appointment priority")
	ErrInvalidSlotDuration     = errors.New("slot duration must be between 1 and 540 minutes")
	ErrPractitionerRequired    = errors.New("a practitioner is required")
	ErrPractitionerNotFound    = errors.New("practitioner not found")
	ErrNotReschedulable        = errors.New("appointment can no longer be rescheduled")
)

// ConflictError rejects a booking and carries the appointments it overlaps.
type ConflictError struct {
	Conflicts []*Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: overlaps %d existing appointment(s)", ErrSlotUnavailable, len(e.Conflicts))
}

func (e *ConflictError) Unwrap() error {
	return ErrSlotUnavailable
}
