package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// minRetention keeps replays available for at least a day.
const minRetention = 24 * time.Hour

// Purger deletes idempotency records older than a retention window.
type Purger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob enforces idempotency record retention.
type CleanupJob struct {
	store     Purger
	retention time.Duration
	runner    singleRunner
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewCleanupJob builds the retention sweep. locker may be nil.
func NewCleanupJob(store Purger, retention time.Duration, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		store:     store,
		retention: retention,
		runner:    singleRunner{locker: locker, ttl: 5 * time.Minute, logger: logger},
		logger:    logger,
		metrics:   metrics,
	}
}

// Handle executes the sweep for an asynq task.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Retention)
	return err
}

// Run deletes expired records and reports how many were removed.
func (j *CleanupJob) Run(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = j.retention
	}
	if retention < minRetention {
		retention = minRetention
	}
	tracker := j.metrics.Track(TaskIdempotencyCleanup)
	var removed int64
	ran, err := j.runner.run(ctx, TaskIdempotencyCleanup, func(ctx context.Context) error {
		var err error
		removed, err = j.store.Cleanup(ctx, retention)
		return err
	})
	if err != nil {
		j.logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return 0, tracker.End(err)
	}
	if !ran {
		j.logger.Info("idempotency cleanup skipped, lock held elsewhere")
		return 0, nil
	}
	j.metrics.AddPurged(removed)
	j.logger.Info("idempotency cleanup completed", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return removed, tracker.End(nil)
}
