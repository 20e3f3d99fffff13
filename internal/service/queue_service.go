package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/queue"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/events"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueueService keeps the waiting line in step with appointment events. The
// lifecycle manager never writes queue rows; it only publishes.
type QueueService struct {
	repo     queue.Repository
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
	now      func() time.Time
}

func NewQueueService(repo queue.Repository, auditSvc *AuditService, m *metrics.Collector, log *zap.Logger) *QueueService {
	return &QueueService{repo: repo, auditSvc: auditSvc, metrics: m, log: log, now: time.Now}
}

func (s *QueueService) Register(bus *events.Bus) {
	bus.Subscribe(events.AppointmentCheckedIn, s.onCheckedIn)
	bus.Subscribe(events.AppointmentCompleted, s.onCompleted)
	bus.Subscribe(events.AppointmentCancelled, s.onWithdrawn)
	bus.Subscribe(events.AppointmentStatusChanged, func(ctx context.Context, e events.Event) error {
		if e.Appointment.Status == appointment.StatusNoShow {
			return s.onWithdrawn(ctx, e)
		}
		return nil
	})
}

// Enqueue appends a checked-in appointment to its practitioner's line for the day.
func (s *QueueService) Enqueue(ctx context.Context, a *appointment.Appointment) (*queue.Entry, error) {
	if a.GurujiID == nil {
		return nil, queue.ErrNoPractitioner
	}
	if _, err := s.repo.GetByAppointmentID(ctx, a.ID); err == nil {
		return nil, queue.ErrAlreadyQueued
	} else if !errors.Is(err, queue.ErrEntryNotFound) {
		return nil, err
	}

	e := &queue.Entry{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		GurujiID:      *a.GurujiID,
		Date:          a.Date,
		Priority:      a.Priority,
		Status:        queue.StatusWaiting,
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("appending queue entry: %w", err)
	}

	s.log.Info("visitor queued",
		zap.String("appointment_id", a.ID.String()),
		zap.String("guruji_id", e.GurujiID.String()),
		zap.Int("position", e.Position),
	)
	return e, nil
}

// ListQueue returns the day's line in service order: priority, then arrival.
func (s *QueueService) ListQueue(ctx context.Context, gurujiID uuid.UUID, date time.Time, caller Caller) ([]*queue.Entry, error) {
	if !canManageQueue(gurujiID, caller) {
		return nil, ErrForbidden
	}
	entries, err := s.repo.ListForDay(ctx, gurujiID, date)
	if err != nil {
		return nil, err
	}
	queue.Order(entries)
	return entries, nil
}

// CallNext marks the head of the waiting line as called.
func (s *QueueService) CallNext(ctx context.Context, gurujiID uuid.UUID, date time.Time, caller Caller) (*queue.Entry, error) {
	if !canManageQueue(gurujiID, caller) {
		return nil, ErrForbidden
	}
	entries, err := s.repo.ListForDay(ctx, gurujiID, date)
	if err != nil {
		return nil, err
	}

	next := queue.Next(entries)
	if next == nil {
		return nil, queue.ErrQueueEmpty
	}
	if err := next.Call(s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("saving queue entry: %w", err)
	}

	s.metrics.QueueCallsTotal.Inc()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionUpdate, ResourceType: "queue_entry", ResourceID: next.ID.String(),
		Changes: changes(map[string]any{"status": next.Status}),
	})
	return next, nil
}

func (s *QueueService) Skip(ctx context.Context, entryID uuid.UUID, caller Caller) (*queue.Entry, error) {
	e, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !canManageQueue(e.GurujiID, caller) {
		return nil, ErrForbidden
	}
	if err := e.Skip(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("saving queue entry: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionUpdate, ResourceType: "queue_entry", ResourceID: e.ID.String(),
		Changes: changes(map[string]any{"status": e.Status}),
	})
	return e, nil
}

func (s *QueueService) MarkServed(ctx context.Context, appointmentID uuid.UUID) error {
	e, err := s.repo.GetByAppointmentID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if err := e.Serve(s.now().UTC()); err != nil {
		return err
	}
	return s.repo.Save(ctx, e)
}

func (s *QueueService) onCheckedIn(ctx context.Context, e events.Event) error {
	a := e.Appointment
	if a.GurujiID == nil {
		// No practitioner, no line to join
		return nil
	}
	_, err := s.Enqueue(ctx, &a)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		return nil
	}
	return err
}

func (s *QueueService) onCompleted(ctx context.Context, e events.Event) error {
	err := s.MarkServed(ctx, e.Appointment.ID)
	if errors.Is(err, queue.ErrEntryNotFound) || errors.Is(err, queue.ErrInvalidEntryState) {
		return nil
	}
	return err
}

func (s *QueueService) onWithdrawn(ctx context.Context, e events.Event) error {
	entry, err := s.repo.GetByAppointmentID(ctx, e.Appointment.ID)
	if errors.Is(err, queue.ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !entry.IsPending() {
		return nil
	}
	if err := entry.Skip(); err != nil {
		return err
	}
	return s.repo.Save(ctx, entry)
}

func canManageQueue(gurujiID uuid.UUID, caller Caller) bool {
	return caller.Role.IsStaff() || (caller.Role == domain.RoleGuruji && caller.ID == gurujiID)
}
