package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeCleanupCancelled = "cleanup:cancelled"
	TypeNoShowSweep      = "appointments:no_show_sweep"
)

type CleanupPayload struct {
	// Retention is how long cancelled appointments are kept, counted from their date.
	Retention time.Duration `json:"retention"`
}

func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, fmt.Errorf("encoding cleanup payload: %w", err)
	}
	return asynq.NewTask(TypeCleanupCancelled, payload, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// NewNoShowSweepTask is unique per interval so overlapping scheduler ticks
// do not queue duplicate sweeps.
func NewNoShowSweepTask(interval time.Duration) *asynq.Task {
	return asynq.NewTask(TypeNoShowSweep, nil,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(interval),
	)
}
