package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	OrgID    int64
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Before   map[string]any
	After    map[string]any
	At       time.Time
}

// AuditSink accepts audit records.
type AuditSink interface {
	Record(ctx context.Context, log AuditLog) error
}

// Execer is satisfied by pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var (
	_ Execer = (*pgxpool.Pool)(nil)
	_ Execer = (pgx.Tx)(nil)
)

// AuditLogger writes records into audit_logs. Built on the pool it commits on
// its own; built on a transaction it shares that transaction's fate.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	before, err := marshalMeta(log.Before)
	if err != nil {
		return err
	}
	after, err := marshalMeta(log.After)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (org_id, actor_id, action, entity, entity_id, before_data, after_data, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		log.OrgID, log.ActorID, log.Action, log.Entity, log.EntityID, before, after, at)
	return err
}

func (log AuditLog) validate() error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

// MemoryAuditSink collects records in memory. Used by tests and dry runs.
type MemoryAuditSink struct {
	Logs []AuditLog
}

// Record appends the entry.
func (m *MemoryAuditSink) Record(_ context.Context, log AuditLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	m.Logs = append(m.Logs, log)
	return nil
}

// Actions lists recorded actions in order.
func (m *MemoryAuditSink) Actions() []string {
	out := make([]string, 0, len(m.Logs))
	for _, l := range m.Logs {
		out = append(out, l.Action)
	}
	return out
}
