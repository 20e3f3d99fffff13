package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/config"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/events"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/report"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/testutil"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const bookingDay = "2030-03-14"

type api struct {
	t      *testing.T
	router *gin.Engine
	jwt    *auth.JWTManager

	guruji domain.User
	seeker domain.User
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	cfg := &config.Config{
		App:       config.AppConfig{Name: "ashram-api", Environment: "test", Version: "1.2.3"},
		JWT:       config.JWTConfig{Secret: "handler-test-secret-with-enough-bytes", AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Hour, Issuer: "ashram-auth"},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, AllowedMethods: []string{"GET", "POST"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000, IdleTTL: time.Minute},
	}
	log := zap.NewNop()
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	db := testutil.NewTestDB(t)

	apptRepo := repository.NewAppointmentRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	users := repository.NewUserRepository(db)
	bus := events.NewBus(log, m)

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), log, m)
	t.Cleanup(auditSvc.Shutdown)

	availability := service.NewAvailabilityService(apptRepo, cache.NewMemoryStore(0), time.Minute, loc, log, m)
	availability.Register(bus)
	appointments := service.NewAppointmentService(apptRepo, users, bus, auditSvc, m, loc, log)
	queueSvc := service.NewQueueService(queueRepo, auditSvc, m, log)
	queueSvc.Register(bus)
	consultations := service.NewConsultationService(repository.NewConsultationRepository(db), appointments, auditSvc, log)
	dashboard := service.NewDashboardService(apptRepo, queueRepo, loc)
	admin := service.NewAdminService(apptRepo, users, appointments, auditSvc, 30*time.Minute, loc, log)

	a := &api{t: t, jwt: auth.NewJWTManager(cfg.JWT)}
	a.router = NewRouter(RouterDeps{
		Config:      cfg,
		Log:         log,
		Metrics:     m,
		Tokens:      a.jwt,
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit, log, m),
		Ready: map[string]ReadinessCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
		Appointments:  NewAppointmentHandler(appointments, loc),
		Availability:  NewAvailabilityHandler(availability, admin, 30, loc),
		Queue:         NewQueueHandler(queueSvc, loc),
		Consultations: NewConsultationHandler(consultations),
		Admin:         NewAdminHandler(admin, dashboard, loc, 90*24*time.Hour),
	})

	a.guruji = domain.User{ID: uuid.New(), Email: "guruji@ashram.org", FullName: "Guruji", Role: domain.RoleGuruji, IsActive: true}
	a.seeker = domain.User{ID: uuid.New(), Email: "seeker@example.org", FullName: "Seeker", Role: domain.RoleUser, IsActive: true}
	for _, u := range []*domain.User{&a.guruji, &a.seeker} {
		require.NoError(t, users.Create(context.Background(), u))
	}
	return a
}

func (a *api) token(id uuid.UUID, role domain.Role) string {
	pair, err := a.jwt.GenerateTokenPair(&domain.Claims{UserID: id, Role: role})
	require.NoError(a.t, err)
	return pair.AccessToken
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data
}

type appointmentView struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	CheckInCode string     `json:"check_in_code"`
	CheckedInAt *time.Time `json:"checked_in_at"`
}

func TestHealthAndReadiness(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1.2.3")

	w = a.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, "/api/v1/gurujis", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReadinessReportsFailures(t *testing.T) {
	r := gin.New()
	r.GET("/readyz", readiness(map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"checks":{"redis":"connection refused"}}`, w.Body.String())
}

func TestBookingFlow(t *testing.T) {
	a := newAPI(t)
	seeker := a.token(a.seeker.ID, domain.RoleUser)
	guruji := a.token(a.guruji.ID, domain.RoleGuruji)
	gurujiPath := "/api/v1/gurujis/" + a.guruji.ID.String()

	w := a.do(http.MethodGet, gurujiPath+"/availability?date="+bookingDay, seeker, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]map[string]any](t, w), 18)

	w = a.do(http.MethodPost, "/api/v1/appointments", seeker, gin.H{
		"guruji_id": a.guruji.ID, "date": bookingDay, "start_time": "10:00", "end_time": "10:30", "purpose": "guidance",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	booked := decode[appointmentView](t, w)
	assert.Equal(t, "BOOKED", booked.Status)

	w = a.do(http.MethodPost, "/api/v1/appointments", seeker, gin.H{
		"guruji_id": a.guruji.ID, "date": bookingDay, "start_time": "10:15", "end_time": "10:45",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		Code    string           `json:"code"`
		Details []ConflictDetail `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, "SLOT_UNAVAILABLE", conflict.Code)
	require.Len(t, conflict.Details, 1)
	assert.Equal(t, booked.ID, conflict.Details[0].AppointmentID)

	w = a.do(http.MethodGet, gurujiPath+"/conflicts?date="+bookingDay+"&start=10:30&end=11:00", seeker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[conflictsResponse](t, w).Available)

	w = a.do(http.MethodPost, "/api/v1/check-in", seeker, gin.H{"code": booked.CheckInCode})
	assert.Equal(t, http.StatusForbidden, w.Code, "visitors do not check themselves in")

	w = a.do(http.MethodPost, "/api/v1/check-in", guruji, gin.H{"code": booked.CheckInCode})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode[appointmentView](t, w).CheckedInAt)

	w = a.do(http.MethodGet, "/api/v1/queue/"+a.guruji.ID.String()+"?date="+bookingDay, guruji, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = a.do(http.MethodPost, "/api/v1/consultations", guruji, gin.H{"appointment_id": booked.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	session := decode[struct {
		ID uuid.UUID `json:"id"`
	}](t, w)

	w = a.do(http.MethodPost, "/api/v1/consultations/"+session.ID.String()+"/end", guruji, gin.H{
		"notes": "steady", "practices": []string{"japa"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(http.MethodGet, "/api/v1/appointments/"+booked.ID.String(), seeker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "COMPLETED", decode[appointmentView](t, w).Status)

	w = a.do(http.MethodPost, "/api/v1/appointments/"+booked.ID.String()+"/cancel", seeker, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TRANSITION")
}

func TestAppointmentValidationAndErrors(t *testing.T) {
	a := newAPI(t)
	seeker := a.token(a.seeker.ID, domain.RoleUser)

	w := a.do(http.MethodPost, "/api/v1/appointments", seeker, gin.H{
		"guruji_id": a.guruji.ID, "date": "14/03/2030", "start_time": "10:00", "end_time": "10:30",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "date must be YYYY-MM-DD")

	w = a.do(http.MethodPost, "/api/v1/appointments", seeker, gin.H{
		"guruji_id": a.guruji.ID, "date": bookingDay, "start_time": "11:00", "end_time": "10:30",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/api/v1/appointments", seeker, gin.H{
		"guruji_id": uuid.New(), "date": bookingDay, "start_time": "10:00", "end_time": "10:30",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(http.MethodPost, "/api/v1/appointments", a.token(a.guruji.ID, domain.RoleGuruji), gin.H{
		"date": bookingDay, "start_time": "10:00", "end_time": "10:30",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), seeker, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(http.MethodGet, "/api/v1/appointments/not-a-uuid", seeker, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/api/v1/gurujis/"+a.guruji.ID.String()+"/availability?date="+bookingDay+"&slot_minutes=600", seeker, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/api/v1/appointments?status=LATE", seeker, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	a := newAPI(t)
	adminToken := a.token(uuid.New(), domain.RoleAdmin)
	coordinator := a.token(uuid.New(), domain.RoleCoordinator)
	seeker := a.token(a.seeker.ID, domain.RoleUser)

	user := gin.H{"id": uuid.New(), "email": "maya@ashram.org", "full_name": "Maya", "role": "guruji"}
	w := a.do(http.MethodPost, "/api/v1/admin/users", coordinator, user)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(http.MethodPost, "/api/v1/admin/users", adminToken, user)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = a.do(http.MethodPost, "/api/v1/admin/users", adminToken, user)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodGet, "/api/v1/gurujis", seeker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 2)

	w = a.do(http.MethodPost, "/api/v1/appointments", coordinator, gin.H{
		"user_id": a.seeker.ID, "guruji_id": a.guruji.ID, "date": bookingDay, "start_time": "09:00", "end_time": "09:30",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodGet, "/api/v1/dashboard/summary?date="+bookingDay, coordinator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[service.DaySummary](t, w)
	assert.EqualValues(t, 1, summary.Total)

	w = a.do(http.MethodGet, "/api/v1/dashboard/summary", seeker, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodGet, "/api/v1/admin/reports/appointments.xlsx?from="+bookingDay+"&to="+bookingDay, coordinator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "appointments_2030-03-14_2030-03-14.xlsx")
	assert.NotZero(t, w.Body.Len())

	w = a.do(http.MethodDelete, "/api/v1/admin/appointments/cancelled", coordinator, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(http.MethodDelete, "/api/v1/admin/appointments/cancelled?older_than_days=30", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"deleted":0}}`, w.Body.String())
}
