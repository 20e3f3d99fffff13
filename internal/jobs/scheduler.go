package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/config"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const noShowUniqueWindow = 10 * time.Minute

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

func NewServer(redis asynq.RedisConnOpt, cfg config.WorkerConfig, log *zap.Logger) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("job failed", zap.String("task", task.Type()), zap.Error(err))
		}),
	})
}

// RegisterSchedules adds the periodic maintenance tasks to s.
func RegisterSchedules(s *asynq.Scheduler, cfg config.WorkerConfig, retention time.Duration) error {
	cleanup, err := NewCleanupTask(retention)
	if err != nil {
		return err
	}
	if _, err := s.Register(cfg.CleanupCron, cleanup); err != nil {
		return fmt.Errorf("scheduling %s: %w", TypeCleanupCancelled, err)
	}
	if _, err := s.Register(cfg.NoShowCron, NewNoShowSweepTask(noShowUniqueWindow)); err != nil {
		return fmt.Errorf("scheduling %s: %w", TypeNoShowSweep, err)
	}
	return nil
}
