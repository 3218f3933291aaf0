package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Range selects posting dates From..To inclusive at UTC day granularity. A nil
// From reads from the beginning of the ledger.
type Range struct {
	From *time.Time
	To   time.Time
}

// Repository loads committed ledger rows for reporting.
type Repository interface {
	// AccountBalances returns one row per account of the org with debit and
	// credit summed over rng. excludeAccrual drops lines of invoice, bill and
	// credit-note headers, including their reversals.
	AccountBalances(ctx context.Context, orgID int64, rng Range, excludeAccrual bool) ([]AccountBalance, error)
	// CashAllocations lists payment allocations recognised within rng: posted
	// and later voided payments on their payment date, plus a reversal entry on
	// the void date of voided ones.
	CashAllocations(ctx context.Context, orgID int64, rng Range) ([]CashAllocation, error)
	// OpenDocuments lists POSTED documents of docType dated on or before asOf
	// with allocations applied by asOf.
	OpenDocuments(ctx context.Context, orgID int64, docType string, asOf time.Time) ([]OpenDocument, error)
	// VATAccounts resolves the mapped output and input VAT accounts.
	VATAccounts(ctx context.Context, orgID int64) (output, input int64, err error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres-backed report repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) AccountBalances(ctx context.Context, orgID int64, rng Range, excludeAccrual bool) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type, COALESCE(a.subtype, ''),
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
LEFT JOIN (
    SELECT gl.account_id, gl.debit, gl.credit
    FROM gl_lines gl
    JOIN gl_headers h ON h.id = gl.header_id
    WHERE h.org_id = $1
      AND ($2::date IS NULL OR h.posting_date >= $2::date)
      AND h.posting_date <= $3::date
      AND (NOT $4 OR h.source_type NOT IN ('INVOICE', 'BILL', 'CREDIT_NOTE'))
) l ON l.account_id = a.id
WHERE a.org_id = $1
GROUP BY a.id, a.code, a.name, a.type, a.subtype
ORDER BY a.code`, orgID, rng.From, rng.To, excludeAccrual)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Subtype, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *pgRepository) CashAllocations(ctx context.Context, orgID int64, rng Range) ([]CashAllocation, error) {
	rows, err := r.pool.Query(ctx, `WITH applied AS (
    SELECT da.id AS allocation_id, p.id AS payment_id, p.document_date, p.status,
           (p.voided_at AT TIME ZONE 'UTC')::date AS voided_on,
           da.amount, t.id AS target_id, t.total, t.gl_header_id
    FROM document_allocations da
    JOIN documents p ON p.id = da.source_document_id
    JOIN documents t ON t.id = da.target_document_id
    WHERE da.org_id = $1
      AND p.type IN ('PAYMENT_RECEIVED', 'VENDOR_PAYMENT')
      AND p.status IN ('POSTED', 'VOID')
      AND t.gl_header_id IS NOT NULL
)
SELECT allocation_id, payment_id, document_date, FALSE, amount, target_id, total, gl_header_id
FROM applied
WHERE ($2::date IS NULL OR document_date >= $2::date) AND document_date <= $3::date
UNION ALL
SELECT allocation_id, payment_id, voided_on, TRUE, amount, target_id, total, gl_header_id
FROM applied
WHERE status = 'VOID' AND voided_on IS NOT NULL
  AND ($2::date IS NULL OR voided_on >= $2::date) AND voided_on <= $3::date
ORDER BY 3, 1, 4`, orgID, rng.From, rng.To)
	if err != nil {
		return nil, err
	}
	type pending struct {
		alloc    CashAllocation
		headerID int64
	}
	var list []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.alloc.AllocationID, &p.alloc.PaymentID, &p.alloc.PaymentDate, &p.alloc.Reversal, &p.alloc.Amount,
			&p.alloc.TargetDocumentID, &p.alloc.TargetTotal, &p.headerID); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines := make(map[int64][]journals.Line)
	out := make([]CashAllocation, 0, len(list))
	for _, p := range list {
		if _, ok := lines[p.headerID]; !ok {
			loaded, err := r.headerLines(ctx, p.headerID)
			if err != nil {
				return nil, err
			}
			lines[p.headerID] = loaded
		}
		p.alloc.TargetLines = lines[p.headerID]
		out = append(out, p.alloc)
	}
	return out, nil
}

func (r *pgRepository) headerLines(ctx context.Context, headerID int64) ([]journals.Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, header_id, line_no, account_id, debit, credit, COALESCE(description, '')
FROM gl_lines WHERE header_id = $1 ORDER BY line_no`, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []journals.Line
	for rows.Next() {
		var l journals.Line
		if err := rows.Scan(&l.ID, &l.HeaderID, &l.LineNo, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *pgRepository) OpenDocuments(ctx context.Context, orgID int64, docType string, asOf time.Time) ([]OpenDocument, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, COALESCE(d.number, ''), COALESCE(d.party_id, 0), COALESCE(pt.name, ''), d.document_date, d.due_date, d.total,
       COALESCE((
           SELECT SUM(da.amount)
           FROM document_allocations da
           JOIN documents s ON s.id = da.source_document_id
           WHERE da.target_document_id = d.id AND s.document_date <= $3::date
             AND (s.status = 'POSTED' OR (s.status = 'VOID' AND (s.voided_at AT TIME ZONE 'UTC')::date > $3::date))
       ), 0)
FROM documents d
LEFT JOIN parties pt ON pt.id = d.party_id
WHERE d.org_id = $1 AND d.type = $2 AND d.status = 'POSTED' AND d.document_date <= $3::date
ORDER BY COALESCE(d.party_id, 0), d.document_date, d.id`, orgID, docType, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpenDocument
	for rows.Next() {
		var d OpenDocument
		if err := rows.Scan(&d.DocumentID, &d.Number, &d.PartyID, &d.PartyName, &d.DocumentDate, &d.DueDate, &d.Total, &d.Allocated); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *pgRepository) VATAccounts(ctx context.Context, orgID int64) (int64, int64, error) {
	repo := mappings.NewRepository(r.pool)
	output, err := repo.Get(ctx, orgID, mappings.KeyOutputTax)
	if err != nil {
		return 0, 0, err
	}
	input, err := repo.Get(ctx, orgID, mappings.KeyInputTax)
	if err != nil {
		if errors.Is(err, shared.ErrMappingNotFound) {
			return output.AccountID, 0, nil
		}
		return 0, 0, fmt.Errorf("input vat mapping: %w", err)
	}
	return output.AccountID, input.AccountID, nil
}
