package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

const defaultIntegrityLimit = 500

// ImbalanceLister returns GL headers whose lines break the balance invariant.
type ImbalanceLister interface {
	ListImbalances(ctx context.Context, limit int) ([]journals.Imbalance, error)
}

// GLIntegrityJob verifies every stored header still balances.
type GLIntegrityJob struct {
	headers ImbalanceLister
	runner  singleRunner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob builds the scan. locker may be nil.
func NewGLIntegrityJob(headers ImbalanceLister, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{
		headers: headers,
		runner:  singleRunner{locker: locker, ttl: 10 * time.Minute, logger: logger},
		logger:  logger,
		metrics: metrics,
	}
}

// Handle executes the scan for an asynq task.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.headers == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Limit)
	return err
}

// Run scans up to limit imbalanced headers and returns them.
func (j *GLIntegrityJob) Run(ctx context.Context, limit int) ([]journals.Imbalance, error) {
	if limit <= 0 {
		limit = defaultIntegrityLimit
	}
	tracker := j.metrics.Track(TaskGLIntegrity)
	var found []journals.Imbalance
	ran, err := j.runner.run(ctx, TaskGLIntegrity, func(ctx context.Context) error {
		var err error
		found, err = j.headers.ListImbalances(ctx, limit)
		return err
	})
	if err != nil {
		j.logger.Error("gl integrity scan failed", slog.Any("error", err))
		return nil, tracker.End(err)
	}
	if !ran {
		j.logger.Info("gl integrity scan skipped, lock held elsewhere")
		return nil, nil
	}
	for _, im := range found {
		j.logger.Error("gl header out of balance",
			slog.Int64("header_id", im.HeaderID),
			slog.Int64("org_id", im.OrgID),
			slog.String("total_debit", im.TotalDebit.String()),
			slog.String("total_credit", im.TotalCredit.String()),
			slog.String("line_debit", im.LineDebit.String()),
			slog.String("line_credit", im.LineCredit.String()),
		)
	}
	j.metrics.AddImbalances(len(found))
	j.logger.Info("gl integrity scan completed", slog.Int("imbalances", len(found)))
	return found, tracker.End(nil)
}
