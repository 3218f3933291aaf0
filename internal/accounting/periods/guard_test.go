package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGuardAllowsWithoutLockDate(t *testing.T) {
	sink := &kinds.MemoryAuditSink{}
	guard := NewGuard(sink, nil)
	err := guard.EnsureNotLocked(context.Background(), LockCheck{Action: "invoice.post", DocumentDate: date(2020, 1, 1)})
	require.NoError(t, err)
	require.Empty(t, sink.Logs)
}

func TestGuardAllowsDayAfterLock(t *testing.T) {
	lock := date(2024, 3, 31)
	guard := NewGuard(&kinds.MemoryAuditSink{}, nil)
	err := guard.EnsureNotLocked(context.Background(), LockCheck{Action: "invoice.post", LockDate: &lock, DocumentDate: date(2024, 4, 1)})
	require.NoError(t, err)
}

func TestGuardBlocksOnLockDateAndAudits(t *testing.T) {
	lock := date(2024, 3, 31)
	sink := &kinds.MemoryAuditSink{}
	guard := NewGuard(sink, nil)
	guard.WithNow(func() time.Time { return date(2024, 5, 1) })

	// Late in the day on the lock date still counts as the lock date.
	docDate := time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)
	err := guard.EnsureNotLocked(context.Background(), LockCheck{
		OrgID: 1, ActorID: 9, EntityType: "invoice", EntityID: "42",
		Action: "invoice.post", LockDate: &lock, DocumentDate: docDate,
	})
	require.ErrorIs(t, err, kinds.ErrPeriodLocked)
	locked, ok := shared.AsPeriodLocked(err)
	require.True(t, ok)
	require.Equal(t, "invoice.post", locked.Action)

	require.Equal(t, []string{"invoice.post.blocked"}, sink.Actions())
	log := sink.Logs[0]
	require.Equal(t, int64(1), log.OrgID)
	require.Equal(t, int64(9), log.ActorID)
	require.Equal(t, "2024-03-31", log.Before["lock_date"])
	require.Equal(t, "2024-03-31", log.Before["document_date"])
	require.Equal(t, true, log.After["blocked"])
}

func TestIsLockedUsesUTCDays(t *testing.T) {
	lock := date(2024, 3, 31)
	plus4 := time.FixedZone("UTC+4", 4*3600)
	// 2024-04-01 02:00 at UTC+4 is still 2024-03-31 in UTC.
	require.True(t, IsLocked(&lock, time.Date(2024, 4, 1, 2, 0, 0, 0, plus4)))
	require.False(t, IsLocked(&lock, time.Date(2024, 4, 1, 5, 0, 0, 0, plus4)))
	require.False(t, IsLocked(nil, date(1999, 1, 1)))
}
