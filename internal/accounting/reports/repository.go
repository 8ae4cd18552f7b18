package reports

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// Repository reads ledger and document data for reports.
type Repository interface {
	LedgerAccount(ctx context.Context, hospitalID, accountID int64) (LedgerAccount, error)
	OpeningSums(ctx context.Context, accountID int64, before time.Time) (debit, credit decimal.Decimal, err error)
	Postings(ctx context.Context, accountID int64, from, to time.Time) ([]Posting, error)
	AccountBalances(ctx context.Context, hospitalID int64, from, to time.Time) ([]AccountBalance, error)
	ReceivableDocuments(ctx context.Context, hospitalID int64, asOf time.Time) ([]AgingDocument, error)
	PayableDocuments(ctx context.Context, hospitalID int64, asOf time.Time) ([]AgingDocument, error)
	UnallocatedCredits(ctx context.Context, hospitalID int64, asOf time.Time) ([]Credit, error)
}

// Store implements Repository with pgx.
type Store struct {
	db db.Querier
}

// NewStore constructs Store. q is normally the pool; reads need no transaction.
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

func (s *Store) LedgerAccount(ctx context.Context, hospitalID, accountID int64) (LedgerAccount, error) {
	var a LedgerAccount
	err := s.db.QueryRow(ctx, `SELECT id, hospital_id, code, name, type FROM accounts WHERE hospital_id=$1 AND id=$2`,
		hospitalID, accountID).Scan(&a.ID, &a.HospitalID, &a.Code, &a.Name, &a.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerAccount{}, shared.ErrAccountNotFound
	}
	return a, err
}

func (s *Store) OpeningSums(ctx context.Context, accountID int64, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.entry_date < $2`, accountID, before).Scan(&debit, &credit)
	return debit, credit, err
}

func (s *Store) Postings(ctx context.Context, accountID int64, from, to time.Time) ([]Posting, error) {
	rows, err := s.db.Query(ctx, `SELECT e.id, e.number, l.id, e.entry_date, COALESCE(NULLIF(l.description, ''), e.description), l.debit, l.credit
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.entry_date BETWEEN $2 AND $3
ORDER BY e.entry_date, e.number, l.id`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.EntryID, &p.EntryNumber, &p.LineID, &p.Date, &p.Description, &p.Debit, &p.Credit); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AccountBalances(ctx context.Context, hospitalID int64, from, to time.Time) ([]AccountBalance, error) {
	rows, err := s.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
  COALESCE(SUM(l.debit) FILTER (WHERE e.entry_date < $2), 0),
  COALESCE(SUM(l.credit) FILTER (WHERE e.entry_date < $2), 0),
  COALESCE(SUM(l.debit) FILTER (WHERE e.entry_date BETWEEN $2 AND $3), 0),
  COALESCE(SUM(l.credit) FILTER (WHERE e.entry_date BETWEEN $2 AND $3), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id AND e.entry_date <= $3
WHERE a.hospital_id=$1
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, hospitalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.OpeningDebit, &b.OpeningCredit, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReceivableDocuments returns patient-side and insurer-side outstanding per
// invoice as of asOf. A claim stops being an insurer receivable on the day it
// was paid or rejected.
func (s *Store) ReceivableDocuments(ctx context.Context, hospitalID int64, asOf time.Time) ([]AgingDocument, error) {
	rows, err := s.db.Query(ctx, `WITH allocated AS (
  SELECT invoice_id, SUM(allocated_amount) AS amount FROM payments
  WHERE hospital_id=$1 AND invoice_id IS NOT NULL AND received_at::date <= $2
  GROUP BY invoice_id
)
SELECT 'PATIENT', i.patient_id, i.id, i.issued_at, i.patient_share - COALESCE(a.amount, 0)
FROM invoices i LEFT JOIN allocated a ON a.invoice_id = i.id
WHERE i.hospital_id=$1 AND i.status NOT IN ('DRAFT','CANCELLED') AND i.issued_at::date <= $2
  AND i.patient_share - COALESCE(a.amount, 0) > 0
UNION ALL
SELECT 'INSURER', i.insurance_provider_id, i.id, i.issued_at, i.insurance_share
FROM invoices i
WHERE i.hospital_id=$1 AND i.status NOT IN ('DRAFT','CANCELLED') AND i.issued_at::date <= $2
  AND i.insurance_share > 0 AND i.insurance_provider_id IS NOT NULL
  AND (i.claim_status NOT IN ('PAID','REJECTED') OR i.claim_settled_on > $2)
ORDER BY 1, 2, 4`, hospitalID, asOf)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (s *Store) PayableDocuments(ctx context.Context, hospitalID int64, asOf time.Time) ([]AgingDocument, error) {
	rows, err := s.db.Query(ctx, `SELECT 'SUPPLIER', supplier_id, id, document_date, total_amount - paid_amount
FROM purchase_invoices
WHERE hospital_id=$1 AND document_date <= $2 AND total_amount - paid_amount > 0
ORDER BY supplier_id, document_date`, hospitalID, asOf)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func scanDocuments(rows pgx.Rows) ([]AgingDocument, error) {
	defer rows.Close()
	var out []AgingDocument
	for rows.Next() {
		var d AgingDocument
		if err := rows.Scan(&d.CounterpartyType, &d.CounterpartyID, &d.DocumentID, &d.DocumentDate, &d.Outstanding); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UnallocatedCredits sums the part of each patient's payments that no invoice absorbed.
func (s *Store) UnallocatedCredits(ctx context.Context, hospitalID int64, asOf time.Time) ([]Credit, error) {
	rows, err := s.db.Query(ctx, `SELECT 'PATIENT', patient_id, SUM(amount - allocated_amount)
FROM payments
WHERE hospital_id=$1 AND received_at::date <= $2
GROUP BY patient_id
HAVING SUM(amount - allocated_amount) > 0
ORDER BY patient_id`, hospitalID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Credit
	for rows.Next() {
		var c Credit
		if err := rows.Scan(&c.CounterpartyType, &c.CounterpartyID, &c.Amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
