package cashier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

const constraintShiftOverlap = "ex_cashier_shift_overlap"

// CashStore persists payments and shift closings.
type CashStore interface {
	InsertPayment(ctx context.Context, p Payment) (bool, error)
	GetPayment(ctx context.Context, hospitalID, id int64) (Payment, error)
	Totals(ctx context.Context, hospitalID, operatorID int64, start, end time.Time) ([]MethodTotal, error)
	LockOperator(ctx context.Context, hospitalID, operatorID int64) error
	HasOverlap(ctx context.Context, hospitalID, operatorID int64, start, end time.Time) (bool, error)
	InsertClosing(ctx context.Context, c ShiftClosing) (ShiftClosing, error)
	ListClosings(ctx context.Context, hospitalID, operatorID int64, limit int) ([]ShiftClosing, error)
}

type sqlStore struct {
	db db.Querier
}

// NewStore binds cashier persistence to q.
func NewStore(q db.Querier) CashStore {
	return &sqlStore{db: q}
}

func (s *sqlStore) InsertPayment(ctx context.Context, p Payment) (bool, error) {
	tag, err := s.db.Exec(ctx, `INSERT INTO payments (id, hospital_id, patient_id, invoice_id, amount, allocated_amount, method, received_by, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (hospital_id, id) DO NOTHING`,
		p.ID, p.HospitalID, p.PatientID, p.InvoiceID, p.Amount, p.Allocated, p.Method, p.ReceivedBy, p.ReceivedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *sqlStore) GetPayment(ctx context.Context, hospitalID, id int64) (Payment, error) {
	var p Payment
	err := s.db.QueryRow(ctx, `SELECT id, hospital_id, patient_id, invoice_id, amount, allocated_amount, method, received_by, received_at
FROM payments WHERE hospital_id=$1 AND id=$2`, hospitalID, id).
		Scan(&p.ID, &p.HospitalID, &p.PatientID, &p.InvoiceID, &p.Amount, &p.Allocated, &p.Method, &p.ReceivedBy, &p.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("%w: payment %d not found", shared.ErrInvalidInput, id)
	}
	return p, err
}

// Totals sums the operator's payments per method in [start, end).
func (s *sqlStore) Totals(ctx context.Context, hospitalID, operatorID int64, start, end time.Time) ([]MethodTotal, error) {
	rows, err := s.db.Query(ctx, `SELECT method, COALESCE(SUM(amount), 0), COUNT(*) FROM payments
WHERE hospital_id=$1 AND received_by=$2 AND received_at >= $3 AND received_at < $4
GROUP BY method ORDER BY method`, hospitalID, operatorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MethodTotal
	for rows.Next() {
		var t MethodTotal
		if err := rows.Scan(&t.Method, &t.Total, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LockOperator serialises closings of one operator for the transaction.
func (s *sqlStore) LockOperator(ctx context.Context, hospitalID, operatorID int64) error {
	_, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, fmt.Sprintf("cashier:%d:%d", hospitalID, operatorID))
	return err
}

func (s *sqlStore) HasOverlap(ctx context.Context, hospitalID, operatorID int64, start, end time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cashier_shift_closings
WHERE hospital_id=$1 AND operator_id=$2 AND range_start < $4 AND $3 < range_end)`, hospitalID, operatorID, start, end).Scan(&exists)
	return exists, err
}

func (s *sqlStore) InsertClosing(ctx context.Context, c ShiftClosing) (ShiftClosing, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO cashier_shift_closings (hospital_id, operator_id, range_start, range_end,
system_cash_total, actual_cash_total, difference, note, closed_by, closed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		c.HospitalID, c.OperatorID, c.RangeStart, c.RangeEnd, c.SystemCashTotal, c.ActualCashTotal,
		c.Difference, c.Note, c.ClosedBy, c.ClosedAt).Scan(&c.ID)
	if err != nil {
		if db.IsConstraintViolation(err, db.CodeExclusionViolation, constraintShiftOverlap) {
			return ShiftClosing{}, shared.ErrShiftOverlap
		}
		return ShiftClosing{}, err
	}
	return c, nil
}

func (s *sqlStore) ListClosings(ctx context.Context, hospitalID, operatorID int64, limit int) ([]ShiftClosing, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, hospital_id, operator_id, range_start, range_end, system_cash_total,
actual_cash_total, difference, note, closed_by, closed_at
FROM cashier_shift_closings WHERE hospital_id=$1 AND operator_id=$2 ORDER BY range_start DESC LIMIT $3`, hospitalID, operatorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ShiftClosing
	for rows.Next() {
		var c ShiftClosing
		if err := rows.Scan(&c.ID, &c.HospitalID, &c.OperatorID, &c.RangeStart, &c.RangeEnd, &c.SystemCashTotal,
			&c.ActualCashTotal, &c.Difference, &c.Note, &c.ClosedBy, &c.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
