package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	Get(ctx context.Context, orgID int64, key string) (AccountMapping, error)
}

type repository struct {
	db Querier
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// NewTxRepository resolves mappings through tx.
func NewTxRepository(tx pgx.Tx) Repository {
	return &repository{db: tx}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, orgID int64, key string) (AccountMapping, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if orgID == 0 || key == "" {
		return AccountMapping{}, errors.New("accounting: org and key required")
	}
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT org_id, key, account_id, created_at, updated_at FROM account_mappings WHERE org_id=$1 AND key=$2`, orgID, key).
		Scan(&mapping.OrgID, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w: %s", shared.ErrMappingNotFound, key)
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}
