package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/config"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/events"
	v1 "github.com/dmehra2102/prod-golang-projects/ashram/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/tracer"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ashram-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, log); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := cache.New(cfg.Cache, cfg.Redis)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.NewCollector(cfg.App.Name, prometheus.DefaultRegisterer)
	loc := cfg.Schedule.Location()
	bus := events.NewBus(log, m)

	if cfg.Kafka.Enabled {
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka), cfg.Kafka.BufferSize, log, m)
		publisher.Register(bus)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("closing event stream", zap.Error(err))
			}
		}()
	}

	apptRepo := repository.NewAppointmentRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	users := repository.NewUserRepository(db)

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), log, m)
	defer auditSvc.Shutdown()

	availability := service.NewAvailabilityService(apptRepo, store, cfg.Cache.TTL, loc, log, m)
	availability.Register(bus)
	appointments := service.NewAppointmentService(apptRepo, users, bus, auditSvc, m, loc, log)
	queueSvc := service.NewQueueService(queueRepo, auditSvc, m, log)
	queueSvc.Register(bus)
	consultations := service.NewConsultationService(repository.NewConsultationRepository(db), appointments, auditSvc, log)
	dashboard := service.NewDashboardService(apptRepo, queueRepo, loc)
	admin := service.NewAdminService(apptRepo, users, appointments, auditSvc, cfg.Schedule.NoShowGrace, loc, log)

	limiter := middleware.NewRateLimiter(cfg.RateLimit, log, m)
	go limiter.Run(time.Minute, ctx.Done())

	router := v1.NewRouter(v1.RouterDeps{
		Config:         cfg,
		Log:            log,
		Metrics:        m,
		MetricsHandler: metrics.MetricsHandler(),
		Tokens:         auth.NewJWTManager(cfg.JWT),
		RateLimiter:    limiter,
		Ready: map[string]v1.ReadinessCheck{
			"database": sqlDB.PingContext,
		},
		Appointments:  v1.NewAppointmentHandler(appointments, loc),
		Availability:  v1.NewAvailabilityHandler(availability, admin, cfg.Schedule.SlotMinutes, loc),
		Queue:         v1.NewQueueHandler(queueSvc, loc),
		Consultations: v1.NewConsultationHandler(consultations),
		Admin:         v1.NewAdminHandler(admin, dashboard, loc, cfg.Schedule.CancelledRetention),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
