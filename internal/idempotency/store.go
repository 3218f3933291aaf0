package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore persists records in idempotency_keys.
type PgStore struct {
	db Querier
}

// NewPgStore builds a store on a pool or a transaction.
func NewPgStore(db Querier) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) FindIdempotencyRecord(ctx context.Context, orgID int64, key string) (Record, bool, error) {
	var rec Record
	err := s.db.QueryRow(ctx, `SELECT org_id, key, scope, actor_id, request_hash, response, status_code, created_at
FROM idempotency_keys WHERE org_id=$1 AND key=$2`, orgID, key).
		Scan(&rec.OrgID, &rec.Key, &rec.Scope, &rec.ActorID, &rec.RequestHash, &rec.Response, &rec.StatusCode, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// InsertIdempotencyRecord waits out a concurrent insert of the same key instead
// of aborting the surrounding transaction.
func (s *PgStore) InsertIdempotencyRecord(ctx context.Context, rec Record) error {
	cmd, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (org_id, key, scope, actor_id, request_hash, response, status_code, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (org_id, key) DO NOTHING`,
		rec.OrgID, rec.Key, rec.Scope, rec.ActorID, rec.RequestHash, rec.Response, rec.StatusCode, rec.CreatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// Cleaner removes expired records.
type Cleaner struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewCleaner(pool *pgxpool.Pool) *Cleaner {
	return &Cleaner{pool: pool, now: time.Now}
}

// Cleanup removes entries older than retention and reports how many went.
func (c *Cleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if c == nil || c.pool == nil {
		return 0, nil
	}
	cutoff := c.now().Add(-olderThan)
	cmd, err := c.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// MemoryStore keeps records in memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func memoryKey(orgID int64, key string) string {
	return strconv.FormatInt(orgID, 10) + "\x00" + key
}

func (m *MemoryStore) FindIdempotencyRecord(_ context.Context, orgID int64, key string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memoryKey(orgID, key)]
	return rec, ok, nil
}

func (m *MemoryStore) InsertIdempotencyRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(rec.OrgID, rec.Key)
	if _, exists := m.records[k]; exists {
		return ErrDuplicateKey
	}
	rec.Response = append([]byte(nil), rec.Response...)
	m.records[k] = rec
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
