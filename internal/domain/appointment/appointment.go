package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// State transitions:
//
//	BOOKED → CONFIRMED → CHECKED_IN → IN_PROGRESS → COMPLETED
//	BOOKED → CHECKED_IN (walk-in arrival without confirmation)
//	BOOKED | CONFIRMED | CHECKED_IN → CANCELLED | NO_SHOW
type Status string

const (
	StatusBooked     Status = "BOOKED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// AllStatuses in lifecycle order.
var AllStatuses = []Status{
	StatusBooked, StatusConfirmed, StatusCheckedIn, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow,
}

func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// nonBlocking statuses free their interval for other bookings.
var nonBlocking = []Status{StatusCancelled, StatusNoShow}

// NonBlockingStatuses returns the statuses ignored by conflict detection.
func NonBlockingStatuses() []Status {
	return append([]Status(nil), nonBlocking...)
}

var transitions = map[Status][]Status{
	StatusBooked:     {StatusConfirmed, StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities for queueing; higher is served first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	}
	return 0
}

type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	UserID   uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	GurujiID *uuid.UUID `gorm:"column:guruji_id;type:uuid;index" json:"guruji_id,omitempty"`

	// Date is the calendar day, stored as midnight UTC.
	Date      time.Time `gorm:"column:date;type:date;not null;index" json:"date"`
	StartTime time.Time `gorm:"column:start_time;not null;index" json:"start_time"`
	EndTime   time.Time `gorm:"column:end_time;not null" json:"end_time"`
	Status    Status    `gorm:"column:status;type:varchar(20);not null;default:'BOOKED';index" json:"status"`
	Priority  Priority  `gorm:"column:priority;type:varchar(10);not null;default:'NORMAL'" json:"priority"`

	Purpose     string `gorm:"column:purpose;type:text" json:"purpose,omitempty"`
	Notes       string `gorm:"column:notes;type:text" json:"notes,omitempty"`
	CheckInCode string `gorm:"column:check_in_code;type:varchar(16);uniqueIndex;not null" json:"check_in_code"`

	ConfirmedAt *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CheckedInAt *time.Time `gorm:"column:checked_in_at" json:"checked_in_at,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text" json:"cancellation_reason,omitempty"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// BlocksSchedule reports whether the appointment occupies its interval.
func (a *Appointment) BlocksSchedule() bool {
	for _, s := range nonBlocking {
		if a.Status == s {
			return false
		}
	}
	return true
}

func (a *Appointment) HasPractitioner(id uuid.UUID) bool {
	return a.GurujiID != nil && *a.GurujiID == id
}

func (a *Appointment) CanTransitionTo(next Status) bool {
	for _, s := range transitions[a.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the appointment to next and stamps the matching timestamp.
// Timestamps of earlier states are never cleared.
func (a *Appointment) TransitionTo(next Status, now time.Time) error {
	if !next.IsValid() {
		return ErrInvalidStatus
	}
	if !a.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}

	a.Status = next
	switch next {
	case StatusConfirmed:
		a.ConfirmedAt = &now
	case StatusCheckedIn:
		a.CheckedInAt = &now
	case StatusInProgress:
		a.StartedAt = &now
	case StatusCompleted:
		a.CompletedAt = &now
	case StatusCancelled:
		a.CancelledAt = &now
	}
	return nil
}

func (a *Appointment) Cancel(reason string, now time.Time) error {
	if err := a.TransitionTo(StatusCancelled, now); err != nil {
		return err
	}
	a.CancellationReason = strings.TrimSpace(reason)
	return nil
}

var reschedulable = []Status{StatusBooked, StatusConfirmed}

// ReschedulableStatuses returns the statuses in which the interval or
// practitioner may still change.
func ReschedulableStatuses() []Status {
	return append([]Status(nil), reschedulable...)
}

// Reschedulable reports whether the interval or practitioner may still change.
func (a *Appointment) Reschedulable() bool {
	for _, s := range reschedulable {
		if a.Status == s {
			return true
		}
	}
	return false
}

// NewCheckInCode issues a short arrival token. It is unique by database
// constraint, not by construction, and carries no security meaning.
func NewCheckInCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ASH-" + strings.ToUpper(raw[:8])
}

type CreateAppointmentCommand struct {
	UserID    uuid.UUID
	GurujiID  *uuid.UUID
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
	Priority  Priority
	Purpose   string
	Notes     string
}

type RescheduleCommand struct {
	// GurujiID reassigns the practitioner when set.
	GurujiID  *uuid.UUID
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
}

type ListAppointmentsQuery struct {
	UserID   *uuid.UUID
	GurujiID *uuid.UUID
	Status   *Status
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

type PagedAppointments struct {
	Appointments []*Appointment `json:"appointments"`
	TotalCount   int64          `json:"total_count"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	TotalPages   int            `json:"total_pages"`
}

type StatusCount struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}
