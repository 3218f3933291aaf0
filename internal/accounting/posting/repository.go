package posting

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/numbering"
	"github.com/odyssey-erp/ledger/internal/accounting/settings"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/idempotency"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

// Repository opens posting units of work.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes everything a post or void touches inside one transaction.
type TxRepository interface {
	idempotency.Store

	GetDocumentForUpdate(ctx context.Context, orgID, documentID int64) (Document, error)
	// GetDocumentsForUpdate locks the documents in ascending id order.
	GetDocumentsForUpdate(ctx context.Context, orgID int64, ids []int64) (map[int64]Document, error)
	MarkDocumentPosted(ctx context.Context, doc Document) error
	MarkDocumentVoided(ctx context.Context, doc Document) error
	UpdatePaymentState(ctx context.Context, doc Document) error

	GetSettingsForUpdate(ctx context.Context, orgID int64) (settings.OrgSettings, error)
	SaveNumbering(ctx context.Context, orgID int64, formats numbering.Formats) error

	GetAccounts(ctx context.Context, orgID int64, ids []int64) (map[int64]accounts.Account, error)
	GetMapping(ctx context.Context, orgID int64, key string) (mappings.AccountMapping, error)

	InsertHeader(ctx context.Context, in journals.HeaderInput) (journals.Header, error)
	GetHeaderForUpdate(ctx context.Context, orgID, headerID int64) (journals.Header, error)
	FindHeaderBySource(ctx context.Context, orgID int64, sourceType journals.SourceType, sourceID string) (journals.Header, error)
	LinkReversal(ctx context.Context, orgID, originalID, reversalID int64) error

	RecordAudit(ctx context.Context, log kinds.AuditLog) error
}

const constraintDocumentNumber = "uq_documents_number"

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx runs fn at read committed: row locks serialize writers on the same
// document and unique constraints catch the rest.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepository(tx))
	})
}

type txRepository struct {
	*idempotency.PgStore
	tx       pgx.Tx
	journals *journals.TxStore
	settings *settings.TxStore
	accounts accounts.Repository
	mappings mappings.Repository
	audit    *kinds.AuditLogger
}

func newTxRepository(tx pgx.Tx) *txRepository {
	return &txRepository{
		PgStore:  idempotency.NewPgStore(tx),
		tx:       tx,
		journals: journals.NewTxStore(tx),
		settings: settings.NewTxStore(tx),
		accounts: accounts.NewTxRepository(tx),
		mappings: mappings.NewTxRepository(tx),
		audit:    kinds.NewAuditLogger(tx),
	}
}

const documentColumns = `id, org_id, type, COALESCE(number, ''), status, COALESCE(party_id, 0), document_date, due_date, currency, exchange_rate,
subtotal, tax_total, total, amount_paid, COALESCE(payment_status, ''), cash_account_id, gl_header_id, posted_at, voided_at`

// Drafts may lack a party or line account; those read as 0 and are rejected
// by validation instead of failing the scan.
const documentLineColumns = `id, line_no, COALESCE(account_id, 0), description, quantity, unit_price, discount_amount, net_amount,
tax_code_id, tax_rate, tax_amount`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.OrgID, &d.Type, &d.Number, &d.Status, &d.PartyID, &d.DocumentDate, &d.DueDate, &d.Currency, &d.ExchangeRate,
		&d.Subtotal, &d.TaxTotal, &d.Total, &d.AmountPaid, &d.PaymentStatus, &d.CashAccountID, &d.GLHeaderID, &d.PostedAt, &d.VoidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrDocumentNotFound
		}
		return Document{}, err
	}
	return d, nil
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, orgID, documentID int64) (Document, error) {
	doc, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, documentID))
	if err != nil {
		return Document{}, err
	}
	if doc.Lines, err = r.loadLines(ctx, doc.ID); err != nil {
		return Document{}, err
	}
	if doc.Allocations, err = r.loadAllocations(ctx, orgID, doc.ID); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) GetDocumentsForUpdate(ctx context.Context, orgID int64, ids []int64) (map[int64]Document, error) {
	out := make(map[int64]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE org_id=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, orgID, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[doc.ID] = doc
	}
	return out, rows.Err()
}

func (r *txRepository) loadLines(ctx context.Context, documentID int64) ([]DocumentLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentLineColumns+` FROM document_lines WHERE document_id=$1 ORDER BY line_no`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []DocumentLine
	for rows.Next() {
		var l DocumentLine
		if err := rows.Scan(&l.ID, &l.LineNo, &l.AccountID, &l.Description, &l.Quantity, &l.UnitPrice, &l.DiscountAmount, &l.NetAmount, &l.TaxCodeID, &l.TaxRate, &l.TaxAmount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) loadAllocations(ctx context.Context, orgID, documentID int64) ([]Allocation, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, source_document_id, target_document_id, amount
FROM document_allocations WHERE org_id=$1 AND source_document_id=$2 ORDER BY id`, orgID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.SourceDocumentID, &a.TargetDocumentID, &a.Amount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) MarkDocumentPosted(ctx context.Context, doc Document) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET status='POSTED', number=$3, gl_header_id=$4, posted_at=$5,
payment_status=NULLIF($6, ''), updated_at=NOW() WHERE org_id=$1 AND id=$2`,
		doc.OrgID, doc.ID, doc.Number, doc.GLHeaderID, doc.PostedAt, string(doc.PaymentStatus))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraintDocumentNumber {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateNumber, doc.Number)
		}
		return err
	}
	return nil
}

func (r *txRepository) MarkDocumentVoided(ctx context.Context, doc Document) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET status='VOID', voided_at=$3, updated_at=NOW() WHERE org_id=$1 AND id=$2`,
		doc.OrgID, doc.ID, doc.VoidedAt)
	return err
}

func (r *txRepository) UpdatePaymentState(ctx context.Context, doc Document) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET amount_paid=$3, payment_status=$4, updated_at=NOW() WHERE org_id=$1 AND id=$2`,
		doc.OrgID, doc.ID, doc.AmountPaid.Round2(), string(doc.PaymentStatus))
	return err
}

func (r *txRepository) GetSettingsForUpdate(ctx context.Context, orgID int64) (settings.OrgSettings, error) {
	return r.settings.GetSettingsForUpdate(ctx, orgID)
}

func (r *txRepository) SaveNumbering(ctx context.Context, orgID int64, formats numbering.Formats) error {
	return r.settings.SaveNumbering(ctx, orgID, formats)
}

func (r *txRepository) GetAccounts(ctx context.Context, orgID int64, ids []int64) (map[int64]accounts.Account, error) {
	return r.accounts.GetAccounts(ctx, orgID, ids)
}

func (r *txRepository) GetMapping(ctx context.Context, orgID int64, key string) (mappings.AccountMapping, error) {
	return r.mappings.Get(ctx, orgID, key)
}

func (r *txRepository) InsertHeader(ctx context.Context, in journals.HeaderInput) (journals.Header, error) {
	return r.journals.InsertHeader(ctx, in)
}

func (r *txRepository) GetHeaderForUpdate(ctx context.Context, orgID, headerID int64) (journals.Header, error) {
	return r.journals.GetForUpdate(ctx, orgID, headerID)
}

func (r *txRepository) FindHeaderBySource(ctx context.Context, orgID int64, sourceType journals.SourceType, sourceID string) (journals.Header, error) {
	return r.journals.FindBySource(ctx, orgID, sourceType, sourceID)
}

func (r *txRepository) LinkReversal(ctx context.Context, orgID, originalID, reversalID int64) error {
	return r.journals.LinkReversal(ctx, orgID, originalID, reversalID)
}

func (r *txRepository) RecordAudit(ctx context.Context, log kinds.AuditLog) error {
	return r.audit.Record(ctx, log)
}
