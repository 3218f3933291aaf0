package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges idempotency records past retention.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
	// TaskGLIntegrity rescans stored GL headers for imbalances.
	TaskGLIntegrity = "ledger:gl_integrity"
)

// CleanupPayload configures one retention sweep. Zero Retention uses the job default.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// IntegrityPayload bounds one integrity scan.
type IntegrityPayload struct {
	Limit int `json:"limit"`
}

// NewCleanupTask constructs the retention sweep task.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewIntegrityTask constructs the GL integrity scan task.
func NewIntegrityTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}
