package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, hospitalID int64) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	Insert(ctx context.Context, in CreateInput) (Account, error)
	SetActive(ctx context.Context, hospitalID, id int64, active bool) (Account, error)
}

type repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

const accountColumns = `id, hospital_id, code, name, type, parent_id, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.HospitalID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, err
}

func (r *repository) List(ctx context.Context, hospitalID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE hospital_id=$1 ORDER BY code`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, `INSERT INTO accounts (hospital_id, code, name, type, parent_id, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING `+accountColumns, in.HospitalID, in.Code, in.Name, in.Type, in.ParentID))
	if db.IsConstraintViolation(err, db.CodeUniqueViolation, "uq_accounts_hospital_code") {
		return Account{}, shared.ErrDuplicateAccountCode
	}
	return account, err
}

func (r *repository) SetActive(ctx context.Context, hospitalID, id int64, active bool) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW()
WHERE id=$1 AND hospital_id=$2 RETURNING `+accountColumns, id, hospitalID, active))
}
