package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/config"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type RouterDeps struct {
	Config         *config.Config
	Log            *zap.Logger
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	Tokens         middleware.TokenValidator
	RateLimiter    *middleware.RateLimiter
	Ready          map[string]ReadinessCheck

	Appointments  *AppointmentHandler
	Availability  *AvailabilityHandler
	Queue         *QueueHandler
	Consultations *ConsultationHandler
	Admin         *AdminHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(d.Log),
		middleware.Logger(d.Log),
		middleware.Metrics(d.Metrics),
		middleware.CORS(d.Config.CORS),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": d.Config.App.Version})
	})
	r.GET("/readyz", readiness(d.Ready))
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	staff := []domain.Role{domain.RoleAdmin, domain.RoleCoordinator}
	operators := []domain.Role{domain.RoleAdmin, domain.RoleCoordinator, domain.RoleGuruji}
	bookers := []domain.Role{domain.RoleAdmin, domain.RoleCoordinator, domain.RoleUser}

	api := r.Group("/api/v1")
	api.Use(d.RateLimiter.Handler(), middleware.Auth(d.Tokens, d.Log))
	{
		api.GET("/gurujis", d.Availability.Practitioners)
		api.GET("/gurujis/:id/availability", d.Availability.Slots)
		api.GET("/gurujis/:id/conflicts", d.Availability.Conflicts)

		appts := api.Group("/appointments")
		appts.POST("", middleware.RequireRoles(bookers...), d.Appointments.Create)
		appts.GET("", d.Appointments.List)
		appts.GET("/by-code/:code", d.Appointments.GetByCode)
		appts.GET("/:id", d.Appointments.Get)
		appts.PATCH("/:id/status", middleware.RequireRoles(operators...), d.Appointments.UpdateStatus)
		appts.POST("/:id/cancel", d.Appointments.Cancel)
		appts.POST("/:id/reschedule", middleware.RequireRoles(bookers...), d.Appointments.Reschedule)

		api.POST("/check-in", middleware.RequireRoles(operators...), d.Appointments.CheckIn)

		q := api.Group("/queue", middleware.RequireRoles(operators...))
		q.POST("/entries/:id/skip", d.Queue.Skip)
		q.GET("/:gurujiId", d.Queue.List)
		q.POST("/:gurujiId/next", d.Queue.CallNext)

		cons := api.Group("/consultations")
		cons.POST("", middleware.RequireRoles(operators...), d.Consultations.Start)
		cons.GET("/:id", d.Consultations.Get)
		cons.POST("/:id/end", middleware.RequireRoles(operators...), d.Consultations.End)
		cons.POST("/:id/addenda", middleware.RequireRoles(operators...), d.Consultations.AddAddendum)

		api.GET("/dashboard/summary", middleware.RequireRoles(operators...), d.Admin.Summary)

		admin := api.Group("/admin")
		admin.POST("/users", middleware.RequireRoles(domain.RoleAdmin), d.Admin.RegisterUser)
		admin.DELETE("/appointments/cancelled", middleware.RequireRoles(domain.RoleAdmin), d.Admin.PurgeCancelled)
		admin.GET("/reports/appointments.xlsx", middleware.RequireRoles(staff...), d.Admin.Export)
	}

	return r
}

func readiness(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"checks": results})
	}
}
