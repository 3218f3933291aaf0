package accounts

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository interface {
	List(ctx context.Context, orgID int64) ([]Account, error)
	GetAccounts(ctx context.Context, orgID int64, ids []int64) (map[int64]Account, error)
}

type repository struct {
	db Querier
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// NewTxRepository reads accounts through tx.
func NewTxRepository(tx pgx.Tx) Repository {
	return &repository{db: tx}
}

const accountColumns = `id, org_id, code, name, type, COALESCE(subtype, ''), parent_id, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, orgID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id=$1 ORDER BY code`, orgID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// GetAccounts returns the requested accounts of orgID keyed by id. Ids outside
// the org are simply absent from the result.
func (r *repository) GetAccounts(ctx context.Context, orgID int64, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id=$1 AND id = ANY($2)`, orgID, ids)
	if err != nil {
		return nil, err
	}
	list, err := collect(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

func collect(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		err := rows.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
