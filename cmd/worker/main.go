package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/config"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/events"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/jobs"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// The worker runs the maintenance jobs. No-shows go through the same
// lifecycle path as API writes, so it wires the queue, cache and stream
// subscribers too.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ashram-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Worker.Enabled {
		return errors.New("WORKER_ENABLED=true must be set for the API and the worker so both share the redis slot cache")
	}
	cfg.App.Name = "ashram-worker"

	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, log); err != nil {
		return err
	}

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
		defer publisher.Close()
	}

	apptRepo := repository.NewAppointmentRepository(db)
	users := repository.NewUserRepository(db)
	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), log, m)
	defer auditSvc.Shutdown()

	service.NewAvailabilityService(apptRepo, store, cfg.Cache.TTL, loc, log, m).Register(bus)
	service.NewQueueService(repository.NewQueueRepository(db), auditSvc, m, log).Register(bus)
	appointments := service.NewAppointmentService(apptRepo, users, bus, auditSvc, m, loc, log)
	admin := service.NewAdminService(apptRepo, users, appointments, auditSvc, cfg.Schedule.NoShowGrace, loc, log)

	redisOpt := jobs.RedisOpt(cfg.Redis)
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: loc, Logger: log.Sugar()})
	if err := jobs.RegisterSchedules(scheduler, cfg.Worker, cfg.Schedule.CancelledRetention); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	mux := asynq.NewServeMux()
	jobs.NewHandlers(admin, log, m).Register(mux)
	srv := jobs.NewServer(redisOpt, cfg.Worker, log)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("starting job server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info("worker started",
		zap.String("cleanup_cron", cfg.Worker.CleanupCron),
		zap.String("no_show_cron", cfg.Worker.NoShowCron),
	)
	<-ctx.Done()

	log.Info("shutting down worker")
	srv.Shutdown()
	return nil
}
