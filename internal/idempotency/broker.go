// Package idempotency deduplicates client-keyed writes and replays their stored responses.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/ledger/internal/shared"
)

var (
	// ErrIdempotencyConflict indicates a reused key with a different payload.
	ErrIdempotencyConflict = fmt.Errorf("idempotency: key reused with a different request: %w", shared.ErrConflict)
	// ErrDuplicateKey is returned by stores when the key is already recorded.
	ErrDuplicateKey = errors.New("idempotency: key already recorded")
	// ErrAlreadyCommitted indicates a concurrent request recorded the same key
	// and payload first; the caller should roll back and replay.
	ErrAlreadyCommitted = fmt.Errorf("idempotency: request already committed: %w", shared.ErrConflict)
)

const maxKeyLength = 255

// Request identifies one keyed write.
type Request struct {
	OrgID     int64
	Scope     string
	ActorID   int64
	ClientKey string
	Method    string
	Path      string
	Payload   any
}

// Record is the persisted outcome of a keyed write.
type Record struct {
	OrgID       int64
	Key         string
	Scope       string
	ActorID     int64
	RequestHash string
	Response    []byte
	StatusCode  int
	CreatedAt   time.Time
}

// Store persists records. InsertIdempotencyRecord returns ErrDuplicateKey when
// (OrgID, Key) already exists.
type Store interface {
	FindIdempotencyRecord(ctx context.Context, orgID int64, key string) (Record, bool, error)
	InsertIdempotencyRecord(ctx context.Context, rec Record) error
}

// Ticket carries the outcome of Begin into Commit.
type Ticket struct {
	OrgID       int64
	Key         string
	Scope       string
	ActorID     int64
	RequestHash string

	Replay     bool
	Response   []byte
	StatusCode int
}

// Enabled reports whether the request supplied a client key.
func (t Ticket) Enabled() bool { return t.Key != "" }

// CompositeKey folds scope, actor and optionally the route into the client key so
// one client key cannot collide across unrelated operations.
func CompositeKey(req Request) string {
	parts := []string{strings.TrimSpace(req.ClientKey), req.Scope, strconv.FormatInt(req.ActorID, 10)}
	if req.Method != "" || req.Path != "" {
		parts = append(parts, strings.ToUpper(req.Method)+" "+req.Path)
	}
	return strings.Join(parts, ":")
}

// Broker implements begin/commit over a Store.
type Broker struct {
	now func() time.Time
}

func NewBroker() *Broker {
	return &Broker{now: time.Now}
}

func (b *Broker) WithNow(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// Begin looks up the request's key. Without a client key it returns a disabled
// ticket. A stored record with the same hash yields a Replay ticket; a different
// hash fails with ErrIdempotencyConflict.
func (b *Broker) Begin(ctx context.Context, store Store, req Request) (Ticket, error) {
	if strings.TrimSpace(req.ClientKey) == "" {
		return Ticket{}, nil
	}
	if req.Scope == "" {
		return Ticket{}, fmt.Errorf("%w: idempotency scope required", shared.ErrValidation)
	}
	key := CompositeKey(req)
	if len(key) > maxKeyLength {
		return Ticket{}, fmt.Errorf("%w: idempotency key too long", shared.ErrValidation)
	}
	hash, err := Hash(req.Payload)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	ticket := Ticket{OrgID: req.OrgID, Key: key, Scope: req.Scope, ActorID: req.ActorID, RequestHash: hash}
	return b.Lookup(ctx, store, ticket)
}

// Lookup re-checks a ticket against the store, e.g. after a row lock revealed
// that a concurrent request already completed.
func (b *Broker) Lookup(ctx context.Context, store Store, ticket Ticket) (Ticket, error) {
	if !ticket.Enabled() {
		return ticket, nil
	}
	rec, found, err := store.FindIdempotencyRecord(ctx, ticket.OrgID, ticket.Key)
	if err != nil {
		return Ticket{}, err
	}
	if !found {
		ticket.Replay = false
		return ticket, nil
	}
	if rec.RequestHash != ticket.RequestHash {
		return Ticket{}, ErrIdempotencyConflict
	}
	ticket.Replay = true
	ticket.Response = rec.Response
	ticket.StatusCode = rec.StatusCode
	return ticket, nil
}

// Commit records the response of a completed request. Disabled and replay
// tickets are not recorded.
func (b *Broker) Commit(ctx context.Context, store Store, ticket Ticket, status int, body []byte) error {
	if !ticket.Enabled() || ticket.Replay {
		return nil
	}
	err := store.InsertIdempotencyRecord(ctx, Record{
		OrgID:       ticket.OrgID,
		Key:         ticket.Key,
		Scope:       ticket.Scope,
		ActorID:     ticket.ActorID,
		RequestHash: ticket.RequestHash,
		Response:    body,
		StatusCode:  status,
		CreatedAt:   b.now().UTC(),
	})
	if !errors.Is(err, ErrDuplicateKey) {
		return err
	}
	existing, lookupErr := b.Lookup(ctx, store, ticket)
	if lookupErr != nil {
		return lookupErr
	}
	if existing.Replay {
		return ErrAlreadyCommitted
	}
	return err
}
