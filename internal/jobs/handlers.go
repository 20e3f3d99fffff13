package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Maintainer is the part of service.AdminService the jobs drive.
type Maintainer interface {
	PurgeCancelled(ctx context.Context, cutoff time.Time, caller service.Caller) (int64, error)
	MarkNoShows(ctx context.Context, now time.Time) (int, error)
}

type Handlers struct {
	svc     Maintainer
	log     *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewHandlers(svc Maintainer, log *zap.Logger, m *metrics.Collector) *Handlers {
	return &Handlers{svc: svc, log: log, metrics: m, now: time.Now}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCleanupCancelled, h.HandleCleanup)
	mux.HandleFunc(TypeNoShowSweep, h.HandleNoShowSweep)
}

func (h *Handlers) HandleCleanup(ctx context.Context, task *asynq.Task) error {
	var p CleanupPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil || p.Retention <= 0 {
		h.record(TypeCleanupCancelled, "invalid")
		return fmt.Errorf("invalid cleanup payload: %w", asynq.SkipRetry)
	}

	deleted, err := h.svc.PurgeCancelled(ctx, h.now().Add(-p.Retention), service.SystemCaller)
	if err != nil {
		h.record(TypeCleanupCancelled, "error")
		return err
	}

	h.record(TypeCleanupCancelled, "ok")
	h.log.Info("cleanup finished", zap.Int64("deleted", deleted), zap.Duration("retention", p.Retention))
	return nil
}

// HandleNoShowSweep does not retry partial failures; the next scheduled sweep
// picks up whatever is still overdue.
func (h *Handlers) HandleNoShowSweep(ctx context.Context, _ *asynq.Task) error {
	marked, err := h.svc.MarkNoShows(ctx, h.now())
	if err != nil {
		h.record(TypeNoShowSweep, "error")
		h.log.Warn("no-show sweep incomplete", zap.Int("marked", marked), zap.Error(err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	h.record(TypeNoShowSweep, "ok")
	return nil
}

func (h *Handlers) record(task, outcome string) {
	h.metrics.JobRunsTotal.WithLabelValues(task, outcome).Inc()
}
