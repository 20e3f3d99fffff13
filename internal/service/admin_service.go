package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserRepository interface {
	UserLookup
	Create(ctx context.Context, u *domain.User) error
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
}

type RegisterUserCommand struct {
	ID       uuid.UUID
	Email    string
	FullName string
	Phone    string
	Role     domain.Role
}

// AdminService holds maintenance operations run by admins and background jobs.
type AdminService struct {
	repo         appointment.Repository
	users        UserRepository
	appointments *AppointmentService
	auditSvc     *AuditService
	noShowGrace  time.Duration
	loc          *time.Location
	log          *zap.Logger
}

func NewAdminService(
	repo appointment.Repository,
	users UserRepository,
	appointments *AppointmentService,
	auditSvc *AuditService,
	noShowGrace time.Duration,
	loc *time.Location,
	log *zap.Logger,
) *AdminService {
	return &AdminService{
		repo:         repo,
		users:        users,
		appointments: appointments,
		auditSvc:     auditSvc,
		noShowGrace:  noShowGrace,
		loc:          loc,
		log:          log,
	}
}

// PurgeCancelled hard-deletes cancelled appointments dated before cutoff.
// It is the only path that deletes appointments.
func (s *AdminService) PurgeCancelled(ctx context.Context, cutoff time.Time, caller Caller) (int64, error) {
	if caller.Role != domain.RoleAdmin {
		return 0, ErrForbidden
	}

	n, err := s.repo.DeleteCancelledBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("failed to purge cancelled appointments", zap.Error(err))
		return 0, fmt.Errorf("purging cancelled appointments: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionDelete, ResourceType: "appointment",
		Changes: changes(map[string]any{"status": appointment.StatusCancelled, "before": dayLabel(cutoff), "deleted": n}),
	})
	s.log.Info("purged cancelled appointments", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// MarkNoShows moves BOOKED and CONFIRMED appointments that ended more than
// the grace period before now to NO_SHOW. Each one goes through the normal
// transition path, so the queue and the slot cache see the change. A failure
// on one appointment does not stop the sweep.
func (s *AdminService) MarkNoShows(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.FindEndedBefore(ctx, now.Add(-s.noShowGrace),
		appointment.StatusBooked, appointment.StatusConfirmed)
	if err != nil {
		return 0, fmt.Errorf("finding overdue appointments: %w", err)
	}

	var (
		marked int
		errs   []error
	)
	for _, a := range overdue {
		if err := s.appointments.transition(ctx, a, appointment.StatusNoShow, "", SystemCaller); err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: %w", a.ID, err))
			continue
		}
		marked++
	}

	if marked > 0 {
		s.log.Info("marked no-shows", zap.Int("count", marked))
	}
	return marked, errors.Join(errs...)
}

// ExportAppointments writes every appointment dated in [from, to] as an xlsx workbook.
func (s *AdminService) ExportAppointments(ctx context.Context, from, to time.Time, w io.Writer, caller Caller) error {
	if !caller.Role.IsStaff() {
		return ErrForbidden
	}
	if to.Before(from) {
		return &ValidationError{Fields: []string{"to must not be before from"}}
	}

	var all []*appointment.Appointment
	q := &appointment.ListAppointmentsQuery{DateFrom: &from, DateTo: &to, Page: 1, PageSize: maxPageSize}
	for {
		page, err := s.repo.List(ctx, q)
		if err != nil {
			return fmt.Errorf("listing appointments: %w", err)
		}
		all = append(all, page.Appointments...)
		if q.Page >= page.TotalPages {
			break
		}
		q.Page++
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionRead, ResourceType: "appointment_export",
		Changes: changes(map[string]any{"from": dayLabel(from), "to": dayLabel(to), "rows": len(all)}),
	})
	return report.WriteAppointments(w, all, s.loc)
}

// RegisterUser mirrors an identity issued by the external auth provider. The
// id must be the provider's subject so tokens resolve to this row.
func (s *AdminService) RegisterUser(ctx context.Context, cmd *RegisterUserCommand, caller Caller) (*domain.User, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	var fields []string
	if cmd.ID == uuid.Nil {
		fields = append(fields, "id is required")
	}
	if _, err := mail.ParseAddress(cmd.Email); err != nil {
		fields = append(fields, "email must be a valid address")
	}
	if strings.TrimSpace(cmd.FullName) == "" {
		fields = append(fields, "full_name is required")
	}
	if !cmd.Role.IsValid() {
		fields = append(fields, "role must be one of admin, coordinator, guruji, user")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	u := &domain.User{
		ID:       cmd.ID,
		Email:    cmd.Email,
		FullName: strings.TrimSpace(cmd.FullName),
		Phone:    strings.TrimSpace(cmd.Phone),
		Role:     cmd.Role,
		IsActive: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Caller: caller, Action: domain.ActionCreate, ResourceType: "user", ResourceID: u.ID.String(),
		Changes: changes(map[string]any{"role": u.Role}),
	})
	return u, nil
}

// ListPractitioners returns active gurujis for booking forms.
func (s *AdminService) ListPractitioners(ctx context.Context) ([]*domain.User, error) {
	return s.users.ListByRole(ctx, domain.RoleGuruji)
}
