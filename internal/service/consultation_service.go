package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/consultation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ConsultationService struct {
	repo         consultation.Repository
	appointments *AppointmentService
	auditSvc     *AuditService
	log          *zap.Logger
	now          func() time.Time
}

func NewConsultationService(
	repo consultation.Repository,
	appointments *AppointmentService,
	auditSvc *AuditService,
	log *zap.Logger,
) *ConsultationService {
	return &ConsultationService{repo: repo, appointments: appointments, auditSvc: auditSvc, log: log, now: time.Now}
}

// Start opens a session for a checked-in appointment and moves it to IN_PROGRESS.
// An appointment left IN_PROGRESS without a session, because an earlier Start
// failed after the status change, gets its session on the next call.
func (s *ConsultationService) Start(ctx context.Context, appointmentID uuid.UUID, caller Caller) (*consultation.Session, error) {
	if _, err := s.repo.GetByAppointmentID(ctx, appointmentID); err == nil {
		return nil, consultation.ErrSessionExists
	} else if !errors.Is(err, consultation.ErrSessionNotFound) {
		return nil, err
	}

	a, err := s.appointments.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.GurujiID == nil {
		return nil, appointment.ErrPractitionerRequired
	}

	if a.Status == appointment.StatusInProgress {
		if !canOperate(a, caller) {
			return nil, ErrForbidden
		}
		s.log.Warn("opening missing session for appointment in progress",
			zap.String("appointment_id", a.ID.String()),
		)
	} else if a, err = s.appointments.UpdateStatus(ctx, appointmentID, appointment.StatusInProgress, caller); err != nil {
		return nil, err
	}

	startedAt := s.now().UTC()
	if a.StartedAt != nil {
		startedAt = *a.StartedAt
	}
	session := &consultation.Session{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		GurujiID:      *a.GurujiID,
		UserID:        a.UserID,
		StartedAt:     startedAt,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		s.log.Error("failed to open consultation session",
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("creating consultation session: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionCreate, ResourceType: "consultation", ResourceID: session.ID.String(),
	})
	return session, nil
}

// End closes the session with the practitioner's notes and completes the
// appointment. If the session was closed but completing the appointment
// failed, calling End again completes it; the notes already saved stand.
func (s *ConsultationService) End(ctx context.Context, sessionID uuid.UUID, cmd *consultation.EndSessionCommand, caller Caller) (*consultation.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canConduct(session, caller) {
		return nil, ErrForbidden
	}

	if session.IsOpen() {
		if err := session.End(cmd, s.now().UTC()); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("saving consultation session: %w", err)
		}
	} else {
		a, err := s.appointments.repo.GetByID(ctx, session.AppointmentID)
		if err != nil {
			return nil, err
		}
		if a.Status != appointment.StatusInProgress {
			return nil, consultation.ErrSessionClosed
		}
		s.log.Warn("completing appointment of a closed session",
			zap.String("session_id", session.ID.String()),
			zap.String("appointment_id", a.ID.String()),
		)
	}

	if _, err := s.appointments.CompleteAppointment(ctx, session.AppointmentID, caller); err != nil {
		return nil, fmt.Errorf("completing appointment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionUpdate, ResourceType: "consultation", ResourceID: session.ID.String(),
		Changes: changes(map[string]any{"ended_at": session.EndedAt, "duration": session.Duration(s.now()).String()}),
	})
	return session, nil
}

// AddAddendum appends a correction to an ended session.
func (s *ConsultationService) AddAddendum(ctx context.Context, cmd *consultation.AddAddendumCommand, caller Caller) (*consultation.Addendum, error) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return nil, consultation.ErrEmptyAddendum
	}

	session, err := s.repo.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if !canConduct(session, caller) {
		return nil, ErrForbidden
	}
	if session.IsOpen() {
		return nil, consultation.ErrSessionOpen
	}

	addendum := &consultation.Addendum{
		ID:        uuid.New(),
		SessionID: session.ID,
		Content:   content,
		CreatedBy: caller.ID,
	}
	if err := s.repo.AddAddendum(ctx, addendum); err != nil {
		return nil, fmt.Errorf("adding addendum: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionCreate, ResourceType: "consultation_addendum", ResourceID: addendum.ID.String(),
	})
	return addendum, nil
}

func (s *ConsultationService) Get(ctx context.Context, sessionID uuid.UUID, caller Caller) (*consultation.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canConduct(session, caller) && !(caller.Role == domain.RoleUser && session.UserID == caller.ID) {
		return nil, ErrForbidden
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionRead, ResourceType: "consultation", ResourceID: session.ID.String(),
	})
	return session, nil
}

func canConduct(session *consultation.Session, caller Caller) bool {
	return caller.Role.IsStaff() || (caller.Role == domain.RoleGuruji && session.GurujiID == caller.ID)
}
