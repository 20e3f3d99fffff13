package service

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/events"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/testutil"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db  *gorm.DB
	loc *time.Location
	now time.Time

	metrics *metrics.Collector
	bus     *events.Bus
	cache   *cache.MemoryStore

	appointmentRepo *repository.AppointmentRepository
	queueRepo       *repository.QueueRepository
	users           *repository.UserRepository

	audit         *AuditService
	availability  *AvailabilityService
	appointments  *AppointmentService
	queue         *QueueService
	consultations *ConsultationService
	dashboard     *DashboardService
	admin         *AdminService

	guruji *domain.User
	seeker *domain.User

	staffCaller  Caller
	gurujiCaller Caller
	seekerCaller Caller
}

// newHarness wires every service against a private SQLite database. The
// clock is fixed the day before the scheduling day used by the tests.
func newHarness(t *testing.T) *harness {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	h := &harness{
		db:      testutil.NewTestDB(t),
		loc:     loc,
		now:     time.Date(2030, 3, 13, 12, 0, 0, 0, loc),
		metrics: metrics.NewCollector("test", prometheus.NewRegistry()),
		cache:   cache.NewMemoryStore(0),
	}
	log := zap.NewNop()
	clock := func() time.Time { return h.now }

	h.bus = events.NewBus(log, h.metrics)
	h.appointmentRepo = repository.NewAppointmentRepository(h.db)
	h.queueRepo = repository.NewQueueRepository(h.db)
	h.users = repository.NewUserRepository(h.db)

	h.audit = NewAuditService(repository.NewAuditRepository(h.db), log, h.metrics)
	t.Cleanup(func() { h.audit.Shutdown() })

	h.availability = NewAvailabilityService(h.appointmentRepo, h.cache, time.Minute, loc, log, h.metrics)
	h.availability.Register(h.bus)

	h.appointments = NewAppointmentService(h.appointmentRepo, h.users, h.bus, h.audit, h.metrics, loc, log)
	h.appointments.now = clock

	h.queue = NewQueueService(h.queueRepo, h.audit, h.metrics, log)
	h.queue.now = clock
	h.queue.Register(h.bus)

	h.consultations = NewConsultationService(repository.NewConsultationRepository(h.db), h.appointments, h.audit, log)
	h.consultations.now = clock

	h.dashboard = NewDashboardService(h.appointmentRepo, h.queueRepo, loc)
	h.admin = NewAdminService(h.appointmentRepo, h.users, h.appointments, h.audit, 30*time.Minute, loc, log)

	h.guruji = h.addUser(t, domain.RoleGuruji, "guruji@ashram.org")
	h.seeker = h.addUser(t, domain.RoleUser, "seeker@example.org")
	h.staffCaller = Caller{ID: uuid.New(), Role: domain.RoleCoordinator, RequestID: "test"}
	h.gurujiCaller = Caller{ID: h.guruji.ID, Role: domain.RoleGuruji}
	h.seekerCaller = Caller{ID: h.seeker.ID, Role: domain.RoleUser}
	return h
}

func (h *harness) addUser(t *testing.T, role domain.Role, email string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Email: email, FullName: email, Role: role, IsActive: true}
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

// at is a wall-clock time on the scheduling day in the center's zone.
func (h *harness) at(hour, minute int) time.Time {
	return time.Date(2030, 3, 14, hour, minute, 0, 0, h.loc)
}

func (h *harness) day() time.Time {
	return h.at(0, 0)
}

func (h *harness) book(t *testing.T, startH, startM, endH, endM int) *appointment.Appointment {
	t.Helper()
	a, err := h.tryBook(startH, startM, endH, endM)
	require.NoError(t, err)
	return a
}

func (h *harness) tryBook(startH, startM, endH, endM int) (*appointment.Appointment, error) {
	gurujiID := h.guruji.ID
	return h.appointments.CreateAppointment(context.Background(), &appointment.CreateAppointmentCommand{
		UserID:    h.seeker.ID,
		GurujiID:  &gurujiID,
		Date:      h.day(),
		StartTime: h.at(startH, startM),
		EndTime:   h.at(endH, endM),
	}, h.staffCaller)
}
