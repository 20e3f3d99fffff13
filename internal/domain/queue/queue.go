package queue

import (
	"sort"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/google/uuid"
)

// State transitions:
//
//	WAITING → CALLED → SERVED
//	WAITING | CALLED → SKIPPED
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusCalled  Status = "CALLED"
	StatusServed  Status = "SERVED"
	StatusSkipped Status = "SKIPPED"
)

// Entry is a checked-in visitor waiting for a practitioner on a given day.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex" json:"appointment_id"`
	GurujiID      uuid.UUID `gorm:"column:guruji_id;type:uuid;not null;uniqueIndex:idx_queue_position" json:"guruji_id"`
	Date          time.Time `gorm:"column:date;type:date;not null;uniqueIndex:idx_queue_position" json:"date"`
	Position      int       `gorm:"column:position;not null;uniqueIndex:idx_queue_position" json:"position"`

	Priority appointment.Priority `gorm:"column:priority;type:varchar(10);not null" json:"priority"`
	Status   Status               `gorm:"column:status;type:varchar(10);not null;index" json:"status"`

	CalledAt *time.Time `gorm:"column:called_at" json:"called_at,omitempty"`
	ServedAt *time.Time `gorm:"column:served_at" json:"served_at,omitempty"`
}

func (Entry) TableName() string {
	return "queue_entries"
}

func (e *Entry) IsPending() bool {
	return e.Status == StatusWaiting || e.Status == StatusCalled
}

func (e *Entry) Call(now time.Time) error {
	if e.Status != StatusWaiting {
		return ErrInvalidEntryState
	}
	e.Status = StatusCalled
	e.CalledAt = &now
	return nil
}

func (e *Entry) Serve(now time.Time) error {
	if !e.IsPending() {
		return ErrInvalidEntryState
	}
	e.Status = StatusServed
	e.ServedAt = &now
	return nil
}

func (e *Entry) Skip() error {
	if !e.IsPending() {
		return ErrInvalidEntryState
	}
	e.Status = StatusSkipped
	return nil
}

// Order sorts entries in service order: higher priority first, then arrival position.
func Order(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].Priority.Rank(), entries[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return entries[i].Position < entries[j].Position
	})
}

// Next returns the first waiting entry in service order, or nil.
func Next(entries []*Entry) *Entry {
	ordered := append([]*Entry(nil), entries...)
	Order(ordered)
	for _, e := range ordered {
		if e.Status == StatusWaiting {
			return e
		}
	}
	return nil
}
