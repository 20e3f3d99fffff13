package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/events"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type AppointmentService struct {
	repo     appointment.Repository
	users    UserLookup
	events   events.Publisher
	auditSvc *AuditService
	metrics  *metrics.Collector
	loc      *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func NewAppointmentService(
	repo appointment.Repository,
	users UserLookup,
	publisher events.Publisher,
	auditSvc *AuditService,
	m *metrics.Collector,
	loc *time.Location,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:     repo,
		users:    users,
		events:   publisher,
		auditSvc: auditSvc,
		metrics:  m,
		loc:      loc,
		log:      log,
		now:      time.Now,
	}
}

// CreateAppointment books an interval in BOOKED status. With a practitioner
// assigned, the conflict check and the insert are atomic; on overlap nothing
// is written and an *appointment.ConflictError is returned.
func (s *AppointmentService) CreateAppointment(
	ctx context.Context,
	cmd *appointment.CreateAppointmentCommand,
	caller Caller,
) (*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.CreateAppointment")
	defer span.End()

	switch caller.Role {
	case domain.RoleUser:
		if cmd.UserID == uuid.Nil {
			cmd.UserID = caller.ID
		}
		if cmd.UserID != caller.ID {
			return nil, ErrForbidden
		}
	case domain.RoleAdmin, domain.RoleCoordinator:
	default:
		return nil, ErrForbidden
	}

	// -------- Input Validation -----------
	if cmd.UserID == uuid.Nil {
		return nil, &ValidationError{Fields: []string{"user_id is required"}}
	}
	if cmd.Priority == "" {
		cmd.Priority = appointment.PriorityNormal
	}
	if !cmd.Priority.IsValid() {
		return nil, appointment.ErrInvalidPriority
	}
	start, end := cmd.StartTime.UTC(), cmd.EndTime.UTC()
	if err := appointment.ValidateInterval(cmd.Date, start, end, s.loc); err != nil {
		return nil, err
	}
	if start.Before(s.now()) {
		return nil, appointment.ErrScheduledInPast
	}
	if cmd.GurujiID != nil {
		if err := s.verifyPractitioner(ctx, *cmd.GurujiID); err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("guruji.id", cmd.GurujiID.String()))
	}

	a := &appointment.Appointment{
		ID:          uuid.New(),
		UserID:      cmd.UserID,
		GurujiID:    cmd.GurujiID,
		Date:        appointment.CalendarDate(cmd.Date),
		StartTime:   start,
		EndTime:     end,
		Status:      appointment.StatusBooked,
		Priority:    cmd.Priority,
		Purpose:     strings.TrimSpace(cmd.Purpose),
		Notes:       strings.TrimSpace(cmd.Notes),
		CheckInCode: appointment.NewCheckInCode(),
		CreatedBy:   caller.ID,
	}

	if err := s.repo.CreateChecked(ctx, a); err != nil {
		var conflict *appointment.ConflictError
		if errors.As(err, &conflict) {
			s.metrics.BookingConflictsTotal.Inc()
			return nil, err
		}
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()
	s.events.Publish(ctx, events.NewEvent(events.AppointmentCreated, a, caller.ID, s.now()))
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller:       caller,
		Action:       domain.ActionCreate,
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		Changes:      changes(map[string]any{"status": a.Status, "start_time": a.StartTime, "end_time": a.EndTime, "guruji_id": a.GurujiID}),
	})
	s.log.Info("appointment booked",
		zap.String("appointment_id", a.ID.String()),
		zap.String("user_id", a.UserID.String()),
		zap.Time("start_time", a.StartTime),
	)

	return a, nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, id uuid.UUID, caller Caller) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(a, caller) {
		return nil, ErrForbidden
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionRead, ResourceType: "appointment", ResourceID: id.String(),
	})
	return a, nil
}

func (s *AppointmentService) GetByCheckInCode(ctx context.Context, code string, caller Caller) (*appointment.Appointment, error) {
	a, err := s.repo.GetByCheckInCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, err
	}
	if !canView(a, caller) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *AppointmentService) ListAppointments(ctx context.Context, q *appointment.ListAppointmentsQuery, caller Caller) (*appointment.PagedAppointments, error) {
	// Users see their own bookings, gurujis their own schedule
	switch caller.Role {
	case domain.RoleUser:
		q.UserID = &caller.ID
	case domain.RoleGuruji:
		q.GurujiID = &caller.ID
	}
	if q.Status != nil && !q.Status.IsValid() {
		return nil, appointment.ErrInvalidStatus
	}
	if q.PageSize <= 0 || q.PageSize > maxPageSize {
		q.PageSize = defaultPageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

// UpdateStatus moves an appointment along the transition table. Moving to
// CANCELLED behaves like CancelAppointment without a reason.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id uuid.UUID, next appointment.Status, caller Caller) (*appointment.Appointment, error) {
	if next == appointment.StatusCancelled {
		return s.CancelAppointment(ctx, id, "", caller)
	}
	if !next.IsValid() {
		return nil, appointment.ErrInvalidStatus
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canOperate(a, caller) {
		return nil, ErrForbidden
	}
	if err := s.transition(ctx, a, next, "", caller); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckIn marks the visitor holding code as arrived.
func (s *AppointmentService) CheckIn(ctx context.Context, code string, caller Caller) (*appointment.Appointment, error) {
	a, err := s.repo.GetByCheckInCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, err
	}
	if !canOperate(a, caller) {
		return nil, ErrForbidden
	}
	if err := s.transition(ctx, a, appointment.StatusCheckedIn, "", caller); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AppointmentService) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, caller Caller) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(a, caller) {
		return nil, ErrForbidden
	}
	if err := s.transition(ctx, a, appointment.StatusCancelled, reason, caller); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AppointmentService) CompleteAppointment(ctx context.Context, id uuid.UUID, caller Caller) (*appointment.Appointment, error) {
	return s.UpdateStatus(ctx, id, appointment.StatusCompleted, caller)
}

// Reschedule moves a BOOKED or CONFIRMED appointment to a new interval and
// optionally a new practitioner. The appointment itself is excluded from the
// conflict check so it may shift within its own interval.
func (s *AppointmentService) Reschedule(ctx context.Context, id uuid.UUID, cmd *appointment.RescheduleCommand, caller Caller) (*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.Reschedule")
	defer span.End()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canReschedule(a, caller) {
		return nil, ErrForbidden
	}
	if !a.Reschedulable() {
		return nil, appointment.ErrNotReschedulable
	}

	start, end := cmd.StartTime.UTC(), cmd.EndTime.UTC()
	if err := appointment.ValidateInterval(cmd.Date, start, end, s.loc); err != nil {
		return nil, err
	}
	if start.Before(s.now()) {
		return nil, appointment.ErrScheduledInPast
	}
	gurujiID := a.GurujiID
	if cmd.GurujiID != nil {
		if err := s.verifyPractitioner(ctx, *cmd.GurujiID); err != nil {
			return nil, err
		}
		gurujiID = cmd.GurujiID
	}

	prevGuruji, prevDate, prevStart := a.GurujiID, a.Date, a.StartTime
	a.GurujiID = gurujiID
	a.Date = appointment.CalendarDate(cmd.Date)
	a.StartTime, a.EndTime = start, end

	if err := s.repo.RescheduleChecked(ctx, a); err != nil {
		var conflict *appointment.ConflictError
		if errors.As(err, &conflict) {
			s.metrics.BookingConflictsTotal.Inc()
			return nil, err
		}
		if errors.Is(err, appointment.ErrNotReschedulable) {
			return nil, err
		}
		s.log.Error("failed to reschedule appointment", zap.String("appointment_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("rescheduling appointment: %w", err)
	}

	e := events.NewEvent(events.AppointmentRescheduled, a, caller.ID, s.now())
	e.PreviousGurujiID, e.PreviousDate = prevGuruji, &prevDate
	s.events.Publish(ctx, e)
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller:       caller,
		Action:       domain.ActionUpdate,
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		Changes: changes(map[string]any{
			"start_time": map[string]any{"from": prevStart, "to": a.StartTime},
			"guruji_id":  map[string]any{"from": prevGuruji, "to": a.GurujiID},
		}),
	})
	return a, nil
}

// transition applies next to a, persists it while the row is still in its
// previous status, and emits the status event.
func (s *AppointmentService) transition(ctx context.Context, a *appointment.Appointment, next appointment.Status, reason string, caller Caller) error {
	prev := a.Status
	now := s.now().UTC()

	var err error
	if next == appointment.StatusCancelled {
		err = a.Cancel(reason, now)
	} else {
		err = a.TransitionTo(next, now)
	}
	if err != nil {
		return err
	}

	if err := s.repo.SaveStatus(ctx, a, prev); err != nil {
		if errors.Is(err, appointment.ErrInvalidStatusTransition) {
			s.log.Warn("appointment status changed concurrently",
				zap.String("appointment_id", a.ID.String()),
				zap.String("expected", string(prev)),
				zap.String("status", string(next)),
			)
			return err
		}
		s.log.Error("failed to update appointment status",
			zap.String("appointment_id", a.ID.String()),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		return fmt.Errorf("updating appointment status: %w", err)
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(next)).Inc()
	e := events.NewEvent(events.TypeForStatus(next), a, caller.ID, now)
	e.PreviousStatus = prev
	s.events.Publish(ctx, e)

	c := map[string]any{"status": map[string]any{"from": prev, "to": next}}
	if reason = strings.TrimSpace(reason); reason != "" {
		c["reason"] = reason
	}
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller:       caller,
		Action:       domain.ActionUpdate,
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		Changes:      changes(c),
	})
	s.log.Info("appointment status changed",
		zap.String("appointment_id", a.ID.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	return nil
}

func (s *AppointmentService) verifyPractitioner(ctx context.Context, id uuid.UUID) error {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return appointment.ErrPractitionerNotFound
	}
	if err != nil {
		return fmt.Errorf("verifying practitioner: %w", err)
	}
	if u.Role != domain.RoleGuruji || !u.IsActive {
		return appointment.ErrPractitionerNotFound
	}
	return nil
}

func canView(a *appointment.Appointment, caller Caller) bool {
	switch caller.Role {
	case domain.RoleAdmin, domain.RoleCoordinator:
		return true
	case domain.RoleGuruji:
		return a.HasPractitioner(caller.ID)
	case domain.RoleUser:
		return a.UserID == caller.ID
	}
	return false
}

// canOperate covers desk and session actions: check-in, confirm, start, complete, no-show.
func canOperate(a *appointment.Appointment, caller Caller) bool {
	return caller.Role.IsStaff() || (caller.Role == domain.RoleGuruji && a.HasPractitioner(caller.ID))
}

func canReschedule(a *appointment.Appointment, caller Caller) bool {
	return caller.Role.IsStaff() || (caller.Role == domain.RoleUser && a.UserID == caller.ID)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func changes(v map[string]any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
