package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/events"
	"github.com/odyssey-erp/ledger/internal/idempotency"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

type voidPayload struct {
	DocumentID int64  `json:"documentId"`
	Reason     string `json:"reason,omitempty"`
}

// VoidDocument reverses the GL header of a POSTED document and marks it VOID.
// Voiding an already voided document returns the existing reversal.
func (s *Service) VoidDocument(ctx context.Context, actor kinds.Actor, req VoidRequest) (Outcome, error) {
	if err := actor.Validate(); err != nil {
		return Outcome{}, err
	}
	if req.DocumentID <= 0 {
		return Outcome{}, fmt.Errorf("%w: document id required", kinds.ErrValidation)
	}
	idem := idempotency.Request{
		OrgID:     actor.OrgID,
		Scope:     "document.void",
		ActorID:   actor.UserID,
		ClientKey: req.ClientKey,
		Method:    req.Method,
		Path:      req.Path,
		Payload:   voidPayload{DocumentID: req.DocumentID, Reason: req.Reason},
	}

	var out Outcome
	fresh := false
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
		switch doc.Status {
		case StatusVoid:
			if ticket, err = s.broker.Lookup(ctx, tx, ticket); err != nil {
				return err
			}
			if ticket.Replay {
				out = replay(ticket)
				return nil
			}
			out, err = s.existingVoid(ctx, tx, doc)
			if err != nil {
				return err
			}
			return s.broker.Commit(ctx, tx, ticket, out.StatusCode, out.Body)
		case StatusPosted:
		default:
			return fmt.Errorf("%w: %s %d is %s", shared.ErrInvalidStatus, doc.Type.Label(), doc.ID, doc.Status)
		}
		if doc.GLHeaderID == nil {
			return fmt.Errorf("%w: posted %s %d has no GL header", kinds.ErrInvariant, doc.Type.Label(), doc.ID)
		}
		if doc.Type.IsPayable() && doc.AmountPaid.Round2().IsPositive() {
			return fmt.Errorf("%w: %s %s has %s applied", shared.ErrDocumentHasPayments, doc.Type.Label(), doc.Number, doc.AmountPaid.Round2())
		}

		cfg, err := tx.GetSettingsForUpdate(ctx, actor.OrgID)
		if err != nil {
			return err
		}
		action := doc.Type.Label() + ".void"
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

		original, err := tx.GetHeaderForUpdate(ctx, actor.OrgID, *doc.GLHeaderID)
		if err != nil {
			return err
		}
		if original.IsReversed() {
			return fmt.Errorf("%w: header %d already reversed", shared.ErrInvalidStatus, original.ID)
		}
		now := s.now().UTC()
		reversal, err := s.reverseHeader(ctx, tx, actor, original, now)
		if err != nil {
			return err
		}
		original.ReversedByHeaderID = &reversal.ID

		if err := s.applyAllocations(ctx, tx, doc, false); err != nil {
			return err
		}

		before := doc.Status
		doc.Status = StatusVoid
		doc.VoidedAt = &now
		if err := tx.MarkDocumentVoided(ctx, doc); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, kinds.AuditLog{
			OrgID:    actor.OrgID,
			ActorID:  actor.UserID,
			Action:   action,
			Entity:   doc.Type.Label(),
			EntityID: strconv.FormatInt(doc.ID, 10),
			Before:   map[string]any{"status": before, "gl_header_id": original.ID},
			After:    map[string]any{"status": doc.Status, "reversal_header_id": reversal.ID, "reason": req.Reason},
			At:       now,
		}); err != nil {
			return err
		}

		body, err := json.Marshal(VoidResponse{
			Document: toDocumentResponse(doc),
			Original: journals.ToResponse(original),
			Reversal: journals.ToResponse(reversal),
		})
		if err != nil {
			return err
		}
		if err := s.broker.Commit(ctx, tx, ticket, http.StatusOK, body); err != nil {
			return err
		}
		out = Outcome{StatusCode: http.StatusOK, Body: body, Document: doc, Header: original, Reversal: &reversal}
		fresh = true
		return nil
	})
	if errors.Is(err, idempotency.ErrAlreadyCommitted) {
		out, err = s.replayCommitted(ctx, idem)
	}
	if err != nil {
		s.observeFailure(actor, "void", req.DocumentID, err)
		return Outcome{}, err
	}
	source := string(out.Document.Type.SourceType())
	if !fresh {
		s.observe(orUnknown(source), "void", "replayed")
		return out, nil
	}
	s.afterCommit(ctx, actor, events.TypeReversed, out.Document.ID, *out.Reversal)
	s.observe(source, "void", "voided")
	return out, nil
}

// reverseHeader inserts the mirror image of original dated today and links
// both headers.
func (s *Service) reverseHeader(ctx context.Context, tx TxRepository, actor kinds.Actor, original journals.Header, now time.Time) (journals.Header, error) {
	reversal, err := tx.InsertHeader(ctx, journals.HeaderInput{
		OrgID:            actor.OrgID,
		SourceType:       original.SourceType,
		SourceID:         journals.ReversalSourceID(original.SourceID),
		PostingDate:      periods.UTCDay(now),
		Currency:         original.Currency,
		ExchangeRate:     original.ExchangeRate,
		Memo:             "Reversal of " + original.Memo,
		PostedBy:         actor.UserID,
		ReversesHeaderID: &original.ID,
		Lines:            journals.ReverseLines(original.Lines),
	})
	if err != nil {
		return journals.Header{}, err
	}
	if err := tx.LinkReversal(ctx, actor.OrgID, original.ID, reversal.ID); err != nil {
		return journals.Header{}, err
	}
	return reversal, nil
}

// existingVoid rebuilds the response of a document voided earlier.
func (s *Service) existingVoid(ctx context.Context, tx TxRepository, doc Document) (Outcome, error) {
	if doc.GLHeaderID == nil {
		return Outcome{}, fmt.Errorf("%w: %s %d is VOID without a GL header", shared.ErrInvalidStatus, doc.Type.Label(), doc.ID)
	}
	original, err := tx.GetHeaderForUpdate(ctx, doc.OrgID, *doc.GLHeaderID)
	if err != nil {
		return Outcome{}, err
	}
	if !original.IsReversed() {
		return Outcome{}, fmt.Errorf("%w: %s %d is VOID but header %d is not reversed", shared.ErrInvalidStatus, doc.Type.Label(), doc.ID, original.ID)
	}
	reversal, err := tx.GetHeaderForUpdate(ctx, doc.OrgID, *original.ReversedByHeaderID)
	if err != nil {
		return Outcome{}, err
	}
	body, err := json.Marshal(VoidResponse{
		Document: toDocumentResponse(doc),
		Original: journals.ToResponse(original),
		Reversal: journals.ToResponse(reversal),
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{StatusCode: http.StatusOK, Body: body, Replayed: true, Document: doc, Header: original, Reversal: &reversal}, nil
}

func orUnknown(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
