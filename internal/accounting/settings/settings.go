// Package settings stores per-organization accounting configuration.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/numbering"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// ReportBasis selects revenue and expense recognition timing.
type ReportBasis string

const (
	BasisAccrual ReportBasis = "ACCRUAL"
	BasisCash    ReportBasis = "CASH"
)

// OrgSettings holds the lock date, numbering counters and report preferences of one org.
type OrgSettings struct {
	OrgID                int64
	LockDate             *time.Time
	Numbering            numbering.Formats
	ReportBasis          ReportBasis
	FiscalYearStartMonth time.Month
	UpdatedAt            time.Time
}

// Defaults returns the settings used for orgs without a stored row.
func Defaults(orgID int64) OrgSettings {
	return OrgSettings{
		OrgID:                orgID,
		Numbering:            numbering.Formats{},
		ReportBasis:          BasisAccrual,
		FiscalYearStartMonth: time.January,
	}
}

// Validate checks the enumerated fields.
func (s OrgSettings) Validate() error {
	if s.ReportBasis != BasisAccrual && s.ReportBasis != BasisCash {
		return fmt.Errorf("%w: report basis %q", shared.ErrValidation, s.ReportBasis)
	}
	if s.FiscalYearStartMonth < time.January || s.FiscalYearStartMonth > time.December {
		return fmt.Errorf("%w: fiscal year start month %d", shared.ErrValidation, s.FiscalYearStartMonth)
	}
	return nil
}

// FiscalYearStart returns the first day of the fiscal year containing asOf.
func (s OrgSettings) FiscalYearStart(asOf time.Time) time.Time {
	month := s.FiscalYearStartMonth
	if month < time.January || month > time.December {
		month = time.January
	}
	asOf = asOf.UTC()
	year := asOf.Year()
	if asOf.Month() < month {
		year--
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectSettings = `SELECT org_id, lock_date, numbering, report_basis, fiscal_year_start_month, updated_at FROM org_settings WHERE org_id=$1`

// Repository reads committed settings.
type Repository struct {
	db Querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Get returns stored settings or defaults.
func (r *Repository) Get(ctx context.Context, orgID int64) (OrgSettings, error) {
	return load(ctx, r.db, selectSettings, orgID)
}

// TxStore reads and writes settings inside a transaction.
type TxStore struct {
	tx pgx.Tx
}

func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// GetSettingsForUpdate locks the org settings row, creating it first when absent
// so concurrent writers serialize on it.
func (s *TxStore) GetSettingsForUpdate(ctx context.Context, orgID int64) (OrgSettings, error) {
	if _, err := s.tx.Exec(ctx, `INSERT INTO org_settings (org_id) VALUES ($1) ON CONFLICT (org_id) DO NOTHING`, orgID); err != nil {
		return OrgSettings{}, err
	}
	return load(ctx, s.tx, selectSettings+` FOR UPDATE`, orgID)
}

// SaveNumbering upserts the numbering counters.
func (s *TxStore) SaveNumbering(ctx context.Context, orgID int64, formats numbering.Formats) error {
	raw, err := json.Marshal(formats)
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx, `INSERT INTO org_settings (org_id, numbering, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (org_id) DO UPDATE SET numbering = EXCLUDED.numbering, updated_at = NOW()`, orgID, raw)
	return err
}

func load(ctx context.Context, q Querier, query string, orgID int64) (OrgSettings, error) {
	out := Defaults(orgID)
	var (
		raw   []byte
		basis *string
		month *int32
	)
	err := q.QueryRow(ctx, query, orgID).Scan(&out.OrgID, &out.LockDate, &raw, &basis, &month, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, nil
		}
		return OrgSettings{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Numbering); err != nil {
			return OrgSettings{}, fmt.Errorf("decode numbering: %w", err)
		}
	}
	if out.Numbering == nil {
		out.Numbering = numbering.Formats{}
	}
	if basis != nil && *basis != "" {
		out.ReportBasis = ReportBasis(*basis)
	}
	if month != nil && *month >= 1 && *month <= 12 {
		out.FiscalYearStartMonth = time.Month(*month)
	}
	return out, nil
}
