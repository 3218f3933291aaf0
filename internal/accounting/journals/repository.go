package journals

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/money"
)

const constraintHeaderSource = "uq_gl_headers_source"

const headerColumns = `id, org_id, source_type, source_id, posting_date, currency, exchange_rate, total_debit, total_credit,
status, reversed_by_header_id, reverses_header_id, memo, posted_by, created_at`

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads committed headers outside write transactions.
type Repository struct {
	db Querier
}

// NewRepository builds a pool-backed Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Get loads a header with its lines.
func (r *Repository) Get(ctx context.Context, orgID, headerID int64) (Header, error) {
	return getHeader(ctx, r.db, orgID, headerID, false)
}

// FindBySource loads the header owning (sourceType, sourceID).
func (r *Repository) FindBySource(ctx context.Context, orgID int64, sourceType SourceType, sourceID string) (Header, error) {
	return findBySource(ctx, r.db, orgID, sourceType, sourceID)
}

// Imbalance describes a stored header whose lines disagree with the invariant.
type Imbalance struct {
	HeaderID    int64
	OrgID       int64
	TotalDebit  money.Money
	TotalCredit money.Money
	LineDebit   money.Money
	LineCredit  money.Money
}

// ListImbalances scans every header for line sums that differ from each other or from the header totals.
func (r *Repository) ListImbalances(ctx context.Context, limit int) ([]Imbalance, error) {
	rows, err := r.db.Query(ctx, `SELECT h.id, h.org_id, h.total_debit, h.total_credit,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM gl_headers h
LEFT JOIN gl_lines l ON l.header_id = h.id
GROUP BY h.id, h.org_id, h.total_debit, h.total_credit
HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0)
    OR COALESCE(SUM(l.debit), 0) <> h.total_debit
    OR COALESCE(SUM(l.credit), 0) <> h.total_credit
    OR h.total_debit <> h.total_credit
ORDER BY h.id
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Imbalance
	for rows.Next() {
		var im Imbalance
		if err := rows.Scan(&im.HeaderID, &im.OrgID, &im.TotalDebit, &im.TotalCredit, &im.LineDebit, &im.LineCredit); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// TxStore writes headers inside a caller-owned transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// InsertHeader validates and persists a header with its lines.
func (s *TxStore) InsertHeader(ctx context.Context, in HeaderInput) (Header, error) {
	totals, err := in.Validate()
	if err != nil {
		return Header{}, err
	}
	rate := in.Rate()
	header := Header{
		OrgID:            in.OrgID,
		SourceType:       in.SourceType,
		SourceID:         in.SourceID,
		PostingDate:      in.PostingDate,
		Currency:         in.Currency,
		ExchangeRate:     &rate,
		TotalDebit:       totals.Debit,
		TotalCredit:      totals.Credit,
		Status:           HeaderStatusPosted,
		ReversesHeaderID: in.ReversesHeaderID,
		Memo:             in.Memo,
		PostedBy:         in.PostedBy,
	}
	err = s.tx.QueryRow(ctx, `INSERT INTO gl_headers (org_id, source_type, source_id, posting_date, currency, exchange_rate,
total_debit, total_credit, status, reverses_header_id, memo, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'POSTED',$9,$10,$11) RETURNING id, created_at`,
		in.OrgID, in.SourceType, in.SourceID, in.PostingDate, in.Currency, rate,
		totals.Debit, totals.Credit, in.ReversesHeaderID, in.Memo, in.PostedBy).
		Scan(&header.ID, &header.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraintHeaderSource {
			return Header{}, shared.ErrSourceAlreadyLinked
		}
		return Header{}, err
	}
	header.Lines = ToLines(header.ID, in.Lines)
	batch := &pgx.Batch{}
	for _, line := range header.Lines {
		batch.Queue(`INSERT INTO gl_lines (header_id, line_no, account_id, debit, credit, description) VALUES ($1,$2,$3,$4,$5,$6)`,
			line.HeaderID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Description)
	}
	if err := s.tx.SendBatch(ctx, batch).Close(); err != nil {
		return Header{}, fmt.Errorf("insert gl lines: %w", err)
	}
	return header, nil
}

// GetForUpdate loads and row-locks a header with its lines.
func (s *TxStore) GetForUpdate(ctx context.Context, orgID, headerID int64) (Header, error) {
	return getHeader(ctx, s.tx, orgID, headerID, true)
}

// FindBySource loads the header owning (sourceType, sourceID) within the transaction.
func (s *TxStore) FindBySource(ctx context.Context, orgID int64, sourceType SourceType, sourceID string) (Header, error) {
	return findBySource(ctx, s.tx, orgID, sourceType, sourceID)
}

// LinkReversal sets the back-reference from original to reversal.
func (s *TxStore) LinkReversal(ctx context.Context, orgID, originalID, reversalID int64) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE gl_headers SET reversed_by_header_id=$3
WHERE org_id=$1 AND id=$2 AND reversed_by_header_id IS NULL`, orgID, originalID, reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidStatus
	}
	return nil
}

func getHeader(ctx context.Context, q Querier, orgID, headerID int64, forUpdate bool) (Header, error) {
	query := `SELECT ` + headerColumns + ` FROM gl_headers WHERE org_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	header, err := scanHeader(q.QueryRow(ctx, query, orgID, headerID))
	if err != nil {
		return Header{}, err
	}
	header.Lines, err = loadLines(ctx, q, header.ID)
	if err != nil {
		return Header{}, err
	}
	return header, nil
}

func findBySource(ctx context.Context, q Querier, orgID int64, sourceType SourceType, sourceID string) (Header, error) {
	header, err := scanHeader(q.QueryRow(ctx, `SELECT `+headerColumns+` FROM gl_headers
WHERE org_id=$1 AND source_type=$2 AND source_id=$3`, orgID, sourceType, sourceID))
	if err != nil {
		return Header{}, err
	}
	header.Lines, err = loadLines(ctx, q, header.ID)
	if err != nil {
		return Header{}, err
	}
	return header, nil
}

func scanHeader(row pgx.Row) (Header, error) {
	var h Header
	err := row.Scan(&h.ID, &h.OrgID, &h.SourceType, &h.SourceID, &h.PostingDate, &h.Currency, &h.ExchangeRate,
		&h.TotalDebit, &h.TotalCredit, &h.Status, &h.ReversedByHeaderID, &h.ReversesHeaderID, &h.Memo, &h.PostedBy, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Header{}, shared.ErrHeaderNotFound
		}
		return Header{}, err
	}
	return h, nil
}

func loadLines(ctx context.Context, q Querier, headerID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, header_id, line_no, account_id, debit, credit, description
FROM gl_lines WHERE header_id=$1 ORDER BY line_no ASC`, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.HeaderID, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.Description); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
