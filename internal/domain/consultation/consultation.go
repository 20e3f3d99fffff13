package consultation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is the practitioner's time with a visitor for one appointment.
// Once ended, a session cannot be edited; corrections go into addenda.
type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex" json:"appointment_id"`
	GurujiID      uuid.UUID `gorm:"column:guruji_id;type:uuid;not null;index" json:"guruji_id"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`

	StartedAt time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	EndedAt   *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`

	Notes     string   `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Guidance  string   `gorm:"column:guidance;type:text" json:"guidance,omitempty"`
	Practices []string `gorm:"column:practices;serializer:json" json:"practices,omitempty"`

	// Addenda: corrections appended without modifying the closed session
	Addenda []Addendum `gorm:"foreignKey:SessionID" json:"addenda,omitempty"`
}

func (Session) TableName() string {
	return "consultations"
}

func (s *Session) IsOpen() bool {
	return s.EndedAt == nil
}

func (s *Session) End(cmd *EndSessionCommand, now time.Time) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}
	s.EndedAt = &now
	s.Notes = strings.TrimSpace(cmd.Notes)
	s.Guidance = strings.TrimSpace(cmd.Guidance)
	s.Practices = cmd.Practices
	return nil
}

// Duration of the session so far, or in total once ended.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Addendum is an append-only correction to an ended session.
type Addendum struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	SessionID uuid.UUID `gorm:"column:session_id;type:uuid;not null;index" json:"session_id"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
}

func (Addendum) TableName() string {
	return "consultation_addenda"
}

type EndSessionCommand struct {
	Notes     string
	Guidance  string
	Practices []string
}

type AddAddendumCommand struct {
	SessionID uuid.UUID
	Content   string
	CreatedBy uuid.UUID
}
