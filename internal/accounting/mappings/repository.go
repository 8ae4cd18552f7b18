package mappings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// Store resolves and maintains system account mappings on any querier,
// including an open transaction.
type Store struct {
	db db.Querier
}

// NewStore binds the store to q.
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Resolve returns the active account mapped to key for the hospital.
func (s *Store) Resolve(ctx context.Context, hospitalID int64, key Key) (int64, error) {
	if !key.Valid() {
		return 0, Missing(hospitalID, key)
	}
	var (
		accountID int64
		active    bool
	)
	err := s.db.QueryRow(ctx, `SELECT m.account_id, a.is_active
FROM system_account_mappings m JOIN accounts a ON a.id = m.account_id AND a.hospital_id = m.hospital_id
WHERE m.hospital_id=$1 AND m.key=$2`, hospitalID, key).Scan(&accountID, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, Missing(hospitalID, key)
		}
		return 0, err
	}
	if !active {
		return 0, Inactive(hospitalID, key, accountID)
	}
	return accountID, nil
}

// List returns every mapping configured for the hospital.
func (s *Store) List(ctx context.Context, hospitalID int64) ([]Mapping, error) {
	rows, err := s.db.Query(ctx, `SELECT hospital_id, key, account_id, updated_at FROM system_account_mappings WHERE hospital_id=$1 ORDER BY key`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.HospitalID, &m.Key, &m.AccountID, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert points key at accountID. The account must belong to the same hospital.
func (s *Store) Upsert(ctx context.Context, hospitalID int64, key Key, accountID int64) (Mapping, error) {
	var m Mapping
	err := s.db.QueryRow(ctx, `INSERT INTO system_account_mappings (hospital_id, key, account_id)
SELECT $1, $2, a.id FROM accounts a WHERE a.id=$3 AND a.hospital_id=$1
ON CONFLICT (hospital_id, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()
RETURNING hospital_id, key, account_id, updated_at`, hospitalID, key, accountID).
		Scan(&m.HospitalID, &m.Key, &m.AccountID, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mapping{}, shared.ErrAccountNotFound
	}
	return m, err
}
