package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	"github.com/odyssey-erp/ledger/internal/shared"
)

// Locker obtains redis-backed locks. Satisfied by *redislock.Client.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// singleRunner guards a job so only one worker replica executes it at a time.
// A nil locker runs fn unguarded.
type singleRunner struct {
	locker Locker
	ttl    time.Duration
	logger *slog.Logger
}

// run reports false when another replica holds the lock.
func (s singleRunner) run(ctx context.Context, job string, fn func(context.Context) error) (bool, error) {
	if s.locker == nil {
		return true, fn(ctx)
	}
	lock, err := s.locker.Obtain(ctx, shared.JobLockKey(job), s.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) && s.logger != nil {
			s.logger.Warn("release job lock", slog.String("job", job), slog.Any("error", err))
		}
	}()
	return true, fn(ctx)
}
