package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/events"
	"github.com/odyssey-erp/ledger/internal/idempotency"
	"github.com/odyssey-erp/ledger/internal/money"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

const openingBalanceLabel = "bank_opening_balance"

// Opening balances are booked in the bank account's own currency.
var unitRate = decimal.NewFromInt(1)

// OpeningBalanceRequest books the starting balance of a bank account.
type OpeningBalanceRequest struct {
	BankAccountID int64
	Amount        money.Money
	Date          time.Time
	Currency      string
	ClientKey     string
	Method        string
	Path          string
}

type openingPayload struct {
	BankAccountID int64       `json:"bankAccountId"`
	Amount        money.Money `json:"amount"`
	Date          time.Time   `json:"date"`
	Currency      string      `json:"currency"`
}

// OpeningBalanceSourceID is the synthetic source id of a bank account's opening balance.
func OpeningBalanceSourceID(bankAccountID int64) string {
	return "bank:" + strconv.FormatInt(bankAccountID, 10)
}

// PostBankOpeningBalance posts Dr bank / Cr opening-balance equity. A bank
// account has at most one opening balance; posting the same lines again returns
// the existing header.
func (s *Service) PostBankOpeningBalance(ctx context.Context, actor kinds.Actor, req OpeningBalanceRequest) (Outcome, error) {
	if err := actor.Validate(); err != nil {
		return Outcome{}, err
	}
	if req.BankAccountID <= 0 {
		return Outcome{}, fmt.Errorf("%w: bank account id required", kinds.ErrValidation)
	}
	if req.Date.IsZero() {
		return Outcome{}, fmt.Errorf("%w: opening balance date required", kinds.ErrValidation)
	}
	date := periods.UTCDay(req.Date)
	idem := idempotency.Request{
		OrgID:     actor.OrgID,
		Scope:     openingBalanceLabel + ".post",
		ActorID:   actor.UserID,
		ClientKey: req.ClientKey,
		Method:    req.Method,
		Path:      req.Path,
		Payload:   openingPayload{BankAccountID: req.BankAccountID, Amount: req.Amount.Round2(), Date: date, Currency: req.Currency},
	}
	sourceID := OpeningBalanceSourceID(req.BankAccountID)

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

		equity, err := tx.GetMapping(ctx, actor.OrgID, mappings.KeyOpeningBalance)
		if err != nil {
			return err
		}
		if err := checkAccounts(ctx, tx, actor.OrgID, []accountRef{
			{req.BankAccountID, accounts.RuleBank},
			{equity.AccountID, accounts.RuleEquity},
		}); err != nil {
			return err
		}
		lines, err := OpeningBalanceLines(req.BankAccountID, equity.AccountID, req.Amount)
		if err != nil {
			return err
		}

		cfg, err := tx.GetSettingsForUpdate(ctx, actor.OrgID)
		if err != nil {
			return err
		}
		action := openingBalanceLabel + ".post"
		if err := s.guard.EnsureNotLocked(ctx, periods.LockCheck{
			OrgID:        actor.OrgID,
			ActorID:      actor.UserID,
			EntityType:   openingBalanceLabel,
			EntityID:     strconv.FormatInt(req.BankAccountID, 10),
			Action:       action,
			LockDate:     cfg.LockDate,
			DocumentDate: date,
		}); err != nil {
			return err
		}

		header, err := tx.FindHeaderBySource(ctx, actor.OrgID, journals.SourceBankOpening, sourceID)
		switch {
		case err == nil:
			if !sameLines(header.Lines, lines) {
				return fmt.Errorf("%w: bank account %d already has an opening balance", shared.ErrSourceAlreadyLinked, req.BankAccountID)
			}
		case errors.Is(err, shared.ErrHeaderNotFound):
			header, err = tx.InsertHeader(ctx, journals.HeaderInput{
				OrgID:        actor.OrgID,
				SourceType:   journals.SourceBankOpening,
				SourceID:     sourceID,
				PostingDate:  date,
				Currency:     req.Currency,
				ExchangeRate: &unitRate,
				Memo:         "Opening balance",
				PostedBy:     actor.UserID,
				Lines:        lines,
			})
			if err != nil {
				return err
			}
			if err := tx.RecordAudit(ctx, kinds.AuditLog{
				OrgID:    actor.OrgID,
				ActorID:  actor.UserID,
				Action:   action,
				Entity:   openingBalanceLabel,
				EntityID: strconv.FormatInt(req.BankAccountID, 10),
				After:    map[string]any{"gl_header_id": header.ID, "amount": req.Amount.Round2().String()},
				At:       s.now().UTC(),
			}); err != nil {
				return err
			}
			fresh = true
		default:
			return err
		}

		body, err := json.Marshal(OpeningBalanceResponse{BankAccountID: req.BankAccountID, Header: journals.ToResponse(header)})
		if err != nil {
			return err
		}
		if err := s.broker.Commit(ctx, tx, ticket, http.StatusOK, body); err != nil {
			return err
		}
		out = Outcome{StatusCode: http.StatusOK, Body: body, Replayed: !fresh, Header: header}
		return nil
	})
	if errors.Is(err, idempotency.ErrAlreadyCommitted) {
		fresh = false
		out, err = s.replayCommitted(ctx, idem)
	}
	source := string(journals.SourceBankOpening)
	if err != nil {
		s.observeFailure(actor, "post", 0, err)
		return Outcome{}, err
	}
	if !fresh {
		s.observe(source, "post", "replayed")
		return out, nil
	}
	s.afterCommit(ctx, actor, events.TypePosted, 0, out.Header)
	s.observe(source, "post", "posted")
	return out, nil
}

func sameLines(existing []journals.Line, candidate []journals.LineInput) bool {
	if len(existing) != len(candidate) {
		return false
	}
	for i, l := range existing {
		c := candidate[i]
		if l.AccountID != c.AccountID || !l.Debit.Round2().Eq(c.Debit.Round2()) || !l.Credit.Round2().Eq(c.Credit.Round2()) {
			return false
		}
	}
	return true
}
