// Package posting turns source documents into balanced GL postings and reverses them.
package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/numbering"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/events"
	"github.com/odyssey-erp/ledger/internal/idempotency"
	"github.com/odyssey-erp/ledger/internal/money"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

// LockGuard rejects writes dated inside a locked period.
type LockGuard interface {
	EnsureNotLocked(ctx context.Context, check periods.LockCheck) error
}

// CacheInvalidator drops cached reports of an org.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, orgID int64) error
}

// Metrics counts posting outcomes.
type Metrics interface {
	ObservePosting(sourceType, action, outcome string)
}

// PostRequest asks for a document to be posted.
type PostRequest struct {
	DocumentID int64
	ClientKey  string
	Method     string
	Path       string
}

// VoidRequest asks for a posted document to be voided.
type VoidRequest struct {
	DocumentID int64
	Reason     string
	ClientKey  string
	Method     string
	Path       string
}

// Service coordinates posting, voiding and opening balances.
type Service struct {
	repo      Repository
	guard     LockGuard
	broker    *idempotency.Broker
	logger    *slog.Logger
	publisher events.Publisher
	cache     CacheInvalidator
	metrics   Metrics
	now       func() time.Time
}

func NewService(repo Repository, guard LockGuard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		guard:     guard,
		broker:    idempotency.NewBroker(),
		logger:    logger,
		publisher: events.Discard{},
		now:       time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.broker.WithNow(now)
	}
}

// SetPublisher injects the post-commit event publisher.
func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// SetCacheInvalidator injects the report cache invalidator.
func (s *Service) SetCacheInvalidator(c CacheInvalidator) {
	s.cache = c
}

// SetMetrics injects the outcome counter.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

type postPayload struct {
	DocumentID int64 `json:"documentId"`
}

// PostDocument posts a DRAFT document. All reads, locks and writes run in one
// transaction; on any error nothing of the post is persisted.
func (s *Service) PostDocument(ctx context.Context, actor kinds.Actor, req PostRequest) (Outcome, error) {
	if err := actor.Validate(); err != nil {
		return Outcome{}, err
	}
	if req.DocumentID <= 0 {
		return Outcome{}, fmt.Errorf("%w: document id required", kinds.ErrValidation)
	}
	idem := idempotency.Request{
		OrgID:     actor.OrgID,
		Scope:     "document.post",
		ActorID:   actor.UserID,
		ClientKey: req.ClientKey,
		Method:    req.Method,
		Path:      req.Path,
		Payload:   postPayload{DocumentID: req.DocumentID},
	}

	var out Outcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ticket, err := s.broker.Begin(ctx, tx, idem)
		if err != nil {
			return err
		}
		if ticket.Replay {
			out = replay(ticket)
			return nil
		}

		doc, err := tx.GetDocumentForUpdate(ctx, actor.OrgID, req.DocumentID)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			// A concurrent retry with the same key may have committed while we
			// waited on the row lock.
			if ticket, err = s.broker.Lookup(ctx, tx, ticket); err != nil {
				return err
			}
			if ticket.Replay {
				out = replay(ticket)
				return nil
			}
			return fmt.Errorf("%w: %s %d is %s", shared.ErrInvalidStatus, doc.Type.Label(), doc.ID, doc.Status)
		}
		if !doc.Type.Valid() {
			return fmt.Errorf("%w: unsupported document type %q", shared.ErrInvalidDocument, doc.Type)
		}
		if doc.PartyID <= 0 {
			return fmt.Errorf("%w: %s %d has no party", shared.ErrInvalidDocument, doc.Type.Label(), doc.ID)
		}

		ctl, err := s.resolveAccounts(ctx, tx, doc)
		if err != nil {
			return err
		}

		cfg, err := tx.GetSettingsForUpdate(ctx, actor.OrgID)
		if err != nil {
			return err
		}
		action := doc.Type.Label() + ".post"
		if err := s.guard.EnsureNotLocked(ctx, periods.LockCheck{
			OrgID:        actor.OrgID,
			ActorID:      actor.UserID,
			EntityType:   doc.Type.Label(),
			EntityID:     strconv.FormatInt(doc.ID, 10),
			Action:       action,
			LockDate:     cfg.LockDate,
			DocumentDate: doc.EffectiveDate(),
		}); err != nil {
			return err
		}

		if doc.Number == "" {
			assigned, next, err := numbering.Next(cfg.Numbering, doc.Type.NumberingType())
			if err != nil {
				return err
			}
			if err := tx.SaveNumbering(ctx, actor.OrgID, next); err != nil {
				return err
			}
			doc.Number = assigned
		}

		lines, err := BuildLines(doc, ctl)
		if err != nil {
			return err
		}
		if _, err := journals.Validate(lines); err != nil {
			return err
		}

		if err := s.applyAllocations(ctx, tx, doc, true); err != nil {
			return err
		}

		header, err := tx.InsertHeader(ctx, journals.HeaderInput{
			OrgID:        actor.OrgID,
			SourceType:   doc.Type.SourceType(),
			SourceID:     strconv.FormatInt(doc.ID, 10),
			PostingDate:  periods.UTCDay(doc.DocumentDate),
			Currency:     doc.Currency,
			ExchangeRate: doc.ExchangeRate,
			Memo:         doc.Number,
			PostedBy:     actor.UserID,
			Lines:        lines,
		})
		if err != nil {
			return err
		}

		before := doc
		now := s.now().UTC()
		doc.Status = StatusPosted
		doc.GLHeaderID = &header.ID
		doc.PostedAt = &now
		if doc.Type.IsPayable() {
			doc.PaymentStatus = PaymentStatusFor(doc.Total, doc.AmountPaid)
		}
		if err := tx.MarkDocumentPosted(ctx, doc); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, kinds.AuditLog{
			OrgID:    actor.OrgID,
			ActorID:  actor.UserID,
			Action:   action,
			Entity:   doc.Type.Label(),
			EntityID: strconv.FormatInt(doc.ID, 10),
			Before:   map[string]any{"status": before.Status, "number": before.Number},
			After:    map[string]any{"status": doc.Status, "number": doc.Number, "gl_header_id": header.ID, "total": doc.Total.String()},
			At:       now,
		}); err != nil {
			return err
		}

		body, err := json.Marshal(PostResponse{Document: toDocumentResponse(doc), Header: journals.ToResponse(header)})
		if err != nil {
			return err
		}
		if err := s.broker.Commit(ctx, tx, ticket, http.StatusOK, body); err != nil {
			return err
		}
		out = Outcome{StatusCode: http.StatusOK, Body: body, Document: doc, Header: header}
		return nil
	})
	if errors.Is(err, idempotency.ErrAlreadyCommitted) {
		out, err = s.replayCommitted(ctx, idem)
	}
	source := orUnknown(string(out.Document.Type.SourceType()))
	if err != nil {
		s.observeFailure(actor, "post", req.DocumentID, err)
		return Outcome{}, err
	}
	if out.Replayed {
		s.observe(source, "post", "replayed")
		return out, nil
	}
	s.afterCommit(ctx, actor, events.TypePosted, out.Document.ID, out.Header)
	s.observe(source, "post", "posted")
	return out, nil
}

// resolveAccounts loads the mapped control accounts and re-checks every
// account the posting will reference.
func (s *Service) resolveAccounts(ctx context.Context, tx TxRepository, doc Document) (ControlAccounts, error) {
	var ctl ControlAccounts
	for _, key := range requiredMappings(doc.Type) {
		m, err := tx.GetMapping(ctx, doc.OrgID, key)
		if err != nil {
			return ControlAccounts{}, err
		}
		switch key {
		case mappings.KeyReceivable:
			ctl.Receivable = m.AccountID
		case mappings.KeyPayable:
			ctl.Payable = m.AccountID
		case mappings.KeyOutputTax:
			ctl.OutputTax = m.AccountID
		case mappings.KeyInputTax:
			ctl.InputTax = m.AccountID
		}
	}
	if doc.CashAccountID != nil {
		ctl.Bank = *doc.CashAccountID
	}
	refs := accountRefs(doc, ctl)
	if err := checkAccounts(ctx, tx, doc.OrgID, refs); err != nil {
		return ControlAccounts{}, err
	}
	return ctl, nil
}

func checkAccounts(ctx context.Context, tx TxRepository, orgID int64, refs []accountRef) error {
	ids := make([]int64, 0, len(refs))
	seen := make(map[int64]struct{}, len(refs))
	for _, r := range refs {
		if r.id == 0 {
			return fmt.Errorf("%w: %s account missing", shared.ErrAccountNotFound, r.rule.Role)
		}
		if _, ok := seen[r.id]; !ok {
			seen[r.id] = struct{}{}
			ids = append(ids, r.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	found, err := tx.GetAccounts(ctx, orgID, ids)
	if err != nil {
		return err
	}
	for _, r := range refs {
		acc, ok := found[r.id]
		if !ok {
			return fmt.Errorf("%w: %s account %d", shared.ErrAccountNotFound, r.rule.Role, r.id)
		}
		if err := r.rule.Check(acc); err != nil {
			return err
		}
	}
	return nil
}

// applyAllocations moves amountPaid on the allocation targets of doc: forward
// when posting, backward (clamped at zero) when voiding. Targets are locked in
// ascending id order.
func (s *Service) applyAllocations(ctx context.Context, tx TxRepository, doc Document, forward bool) error {
	if len(doc.Allocations) == 0 {
		return nil
	}
	targetType, ok := doc.Type.AllocationTarget()
	if !ok {
		return fmt.Errorf("%w: %s cannot carry allocations", shared.ErrInvalidAllocation, doc.Type.Label())
	}
	perTarget := make(map[int64]Allocation)
	allocated := money.Zero
	for _, a := range doc.Allocations {
		amount := a.Amount.Round2()
		if forward && !amount.IsPositive() {
			return fmt.Errorf("%w: allocation %d amount must be positive", shared.ErrInvalidAllocation, a.ID)
		}
		agg := perTarget[a.TargetDocumentID]
		agg.TargetDocumentID = a.TargetDocumentID
		agg.Amount = agg.Amount.Add(amount)
		perTarget[a.TargetDocumentID] = agg
		allocated = allocated.Add(amount)
	}
	if forward && allocated.Gt(doc.Total.Round2()) {
		return fmt.Errorf("%w: allocations %s exceed %s total %s", shared.ErrOverAllocated, allocated, doc.Type.Label(), doc.Total.Round2())
	}

	ids := make([]int64, 0, len(perTarget))
	for id := range perTarget {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets, err := tx.GetDocumentsForUpdate(ctx, doc.OrgID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		target, ok := targets[id]
		if !ok {
			return fmt.Errorf("%w: allocation target %d", shared.ErrDocumentNotFound, id)
		}
		amount := perTarget[id].Amount
		if forward {
			if target.Type != targetType || target.PartyID != doc.PartyID || target.Status != StatusPosted {
				return fmt.Errorf("%w: document %d (%s, %s)", shared.ErrInvalidAllocation, id, target.Type, target.Status)
			}
			paid := target.AmountPaid.Add(amount).Round2()
			if paid.Gt(target.Total.Round2()) {
				return fmt.Errorf("%w: %s %s outstanding %s, allocating %s", shared.ErrOverAllocated,
					target.Type.Label(), target.Number, target.Outstanding(), amount)
			}
			target.AmountPaid = paid
		} else {
			paid := target.AmountPaid.Sub(amount).Round2()
			if paid.IsNegative() {
				paid = money.Zero
			}
			target.AmountPaid = paid
		}
		target.PaymentStatus = PaymentStatusFor(target.Total, target.AmountPaid)
		if err := tx.UpdatePaymentState(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

func replay(ticket idempotency.Ticket) Outcome {
	return Outcome{StatusCode: ticket.StatusCode, Body: ticket.Response, Replayed: true}
}

// replayCommitted answers a request that lost a commit race to an identical one.
func (s *Service) replayCommitted(ctx context.Context, idem idempotency.Request) (Outcome, error) {
	var out Outcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ticket, err := s.broker.Begin(ctx, tx, idem)
		if err != nil {
			return err
		}
		if !ticket.Replay {
			return fmt.Errorf("%w: idempotency record vanished", kinds.ErrConflict)
		}
		out = replay(ticket)
		return nil
	})
	return out, err
}

// afterCommit runs best-effort side effects of a committed header.
func (s *Service) afterCommit(ctx context.Context, actor kinds.Actor, eventType string, documentID int64, header journals.Header) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, actor.OrgID); err != nil {
			s.logger.Warn("invalidate report cache", slog.Int64("org_id", actor.OrgID), slog.Any("error", err))
		}
	}
	event := events.NewLedgerEvent(eventType, s.now())
	event.OrgID = actor.OrgID
	event.ActorID = actor.UserID
	event.HeaderID = header.ID
	event.SourceType = string(header.SourceType)
	event.SourceID = header.SourceID
	event.DocumentID = documentID
	event.PostingDate = header.PostingDate.UTC().Format(time.DateOnly)
	event.TotalDebit = header.TotalDebit.String()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish ledger event", slog.String("type", eventType), slog.Int64("header_id", header.ID), slog.Any("error", err))
	}
	s.logger.Info("ledger header committed",
		slog.String("request_id", actor.RequestID),
		slog.Int64("org_id", actor.OrgID),
		slog.Int64("header_id", header.ID),
		slog.String("source_type", string(header.SourceType)),
		slog.String("source_id", header.SourceID),
		slog.String("total", header.TotalDebit.String()))
}

func (s *Service) observe(source, action, outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(source, action, outcome)
	}
}

func (s *Service) observeFailure(actor kinds.Actor, action string, documentID int64, err error) {
	attrs := []any{
		slog.String("request_id", actor.RequestID),
		slog.Int64("org_id", actor.OrgID),
		slog.String("action", action),
		slog.Int64("document_id", documentID),
		slog.Any("error", err),
	}
	outcome := "rejected"
	switch kinds.Kind(err) {
	case kinds.ErrInvariant:
		outcome = "failed"
		s.logger.Error("ledger invariant violated", attrs...)
	case nil:
		outcome = "failed"
		s.logger.Error("ledger write failed", attrs...)
	default:
		s.logger.Warn("ledger write rejected", attrs...)
	}
	s.observe("unknown", action, outcome)
}
