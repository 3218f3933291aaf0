package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/internal/money"
	"github.com/odyssey-erp/ledger/internal/shared"
)

type stubLister struct {
	calls int
	limit int
	out   []journals.Imbalance
	err   error
}

func (s *stubLister) ListImbalances(_ context.Context, limit int) ([]journals.Imbalance, error) {
	s.calls++
	s.limit = limit
	return s.out, s.err
}

type stubPurger struct {
	calls     int
	retention time.Duration
	removed   int64
}

func (s *stubPurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.calls++
	s.retention = olderThan
	return s.removed, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLocker(t *testing.T) (*redislock.Client, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client), client
}

func TestGLIntegrityReportsImbalances(t *testing.T) {
	lister := &stubLister{out: []journals.Imbalance{{
		HeaderID:    4,
		OrgID:       1,
		TotalDebit:  money.MustParse("100"),
		TotalCredit: money.MustParse("100"),
		LineDebit:   money.MustParse("100"),
		LineCredit:  money.MustParse("99.99"),
	}}}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	locker, _ := newLocker(t)
	job := NewGLIntegrityJob(lister, locker, quietLogger(), metrics)

	found, err := job.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, defaultIntegrityLimit, lister.limit)
}

func TestGLIntegrityCountsImbalances(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewGLIntegrityJob(&stubLister{out: make([]journals.Imbalance, 3)}, nil, quietLogger(), metrics)

	_, err := job.Run(context.Background(), 10)
	require.NoError(t, err)
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() == "ledger_gl_imbalances_total" {
			total = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(3), total)
}

func TestGLIntegritySkipsWhileLockHeld(t *testing.T) {
	locker, _ := newLocker(t)
	held, err := locker.Obtain(context.Background(), shared.JobLockKey(TaskGLIntegrity), time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	lister := &stubLister{}
	job := NewGLIntegrityJob(lister, locker, quietLogger(), nil)
	found, err := job.Run(context.Background(), 10)
	require.NoError(t, err)
	require.Nil(t, found)
	require.Zero(t, lister.calls)
}

func TestGLIntegrityReleasesLock(t *testing.T) {
	locker, client := newLocker(t)
	job := NewGLIntegrityJob(&stubLister{}, locker, quietLogger(), nil)

	_, err := job.Run(context.Background(), 10)
	require.NoError(t, err)
	exists, err := client.Exists(context.Background(), shared.JobLockKey(TaskGLIntegrity)).Result()
	require.NoError(t, err)
	require.Zero(t, exists)
}

func TestGLIntegrityPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	job := NewGLIntegrityJob(&stubLister{err: boom}, nil, quietLogger(), nil)
	_, err := job.Run(context.Background(), 10)
	require.ErrorIs(t, err, boom)
}

func TestIntegrityTaskCarriesLimit(t *testing.T) {
	lister := &stubLister{}
	job := NewGLIntegrityJob(lister, nil, quietLogger(), nil)
	task, err := NewIntegrityTask(25)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 25, lister.limit)

	err = job.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCleanupUsesConfiguredRetention(t *testing.T) {
	purger := &stubPurger{removed: 12}
	job := NewCleanupJob(purger, 72*time.Hour, nil, quietLogger(), nil)
	task, err := NewCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 72*time.Hour, purger.retention)
}

func TestCleanupNeverPurgesRecentRecords(t *testing.T) {
	purger := &stubPurger{}
	job := NewCleanupJob(purger, 72*time.Hour, nil, quietLogger(), nil)
	_, err := job.Run(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, minRetention, purger.retention)
}

func TestCleanupReportsRemoved(t *testing.T) {
	locker, _ := newLocker(t)
	job := NewCleanupJob(&stubPurger{removed: 7}, 48*time.Hour, locker, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	removed, err := job.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(7), removed)
}
