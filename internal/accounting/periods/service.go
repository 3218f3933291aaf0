package periods

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

// Guard rejects writes dated on or before the org lock date. Its audit sink
// must not share the caller's transaction: blocked attempts stay recorded
// after the rollback.
type Guard struct {
	audit  kinds.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

func NewGuard(audit kinds.AuditSink, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{audit: audit, logger: logger, now: time.Now}
}

func (g *Guard) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// EnsureNotLocked audits and rejects check when its document date is locked.
// A failing audit write is logged and the rejection still returned.
func (g *Guard) EnsureNotLocked(ctx context.Context, check LockCheck) error {
	if !IsLocked(check.LockDate, check.DocumentDate) {
		return nil
	}
	lockDate := UTCDay(*check.LockDate)
	docDate := UTCDay(check.DocumentDate)
	if g.audit != nil {
		err := g.audit.Record(ctx, kinds.AuditLog{
			OrgID:    check.OrgID,
			ActorID:  check.ActorID,
			Action:   check.Action + ".blocked",
			Entity:   check.EntityType,
			EntityID: check.EntityID,
			Before: map[string]any{
				"lock_date":     lockDate.Format(time.DateOnly),
				"document_date": docDate.Format(time.DateOnly),
			},
			After: map[string]any{
				"blocked": true,
				"action":  check.Action,
			},
			At: g.now(),
		})
		if err != nil {
			g.logger.Error("audit blocked write",
				slog.String("action", check.Action),
				slog.String("entity_id", check.EntityID),
				slog.Any("error", err))
		}
	}
	g.logger.Warn("write blocked by lock date",
		slog.Int64("org_id", check.OrgID),
		slog.String("action", check.Action),
		slog.String("entity_id", check.EntityID),
		slog.String("lock_date", lockDate.Format(time.DateOnly)))
	return &shared.PeriodLockedError{Action: check.Action, LockDate: lockDate, DocumentDate: docDate}
}
