package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// Store reads and updates invoices inside the caller's transaction.
type Store interface {
	GetInvoice(ctx context.Context, hospitalID, id int64) (Invoice, error)
	LockInvoices(ctx context.Context, hospitalID int64, ids []int64) ([]Invoice, error)
	SaveIssued(ctx context.Context, inv Invoice) (Invoice, error)
	UpdateStatus(ctx context.Context, id int64, status InvoiceStatus, claim ClaimStatus, on time.Time) error
	ApplyPayment(ctx context.Context, id int64, paid decimal.Decimal, status InvoiceStatus) error
	ListBedOccupancy(ctx context.Context, day time.Time) ([]BedOccupancy, error)
}

type sqlStore struct {
	db db.Querier
}

// NewStore binds invoice access to q.
func NewStore(q db.Querier) Store {
	return &sqlStore{db: q}
}

const invoiceColumns = `id, hospital_id, patient_id, insurance_provider_id, issued_at, total_amount, discount_amount,
patient_share, insurance_share, paid_amount, status, claim_status`

func scanInvoice(row pgx.Row, inv *Invoice) error {
	return row.Scan(&inv.ID, &inv.HospitalID, &inv.PatientID, &inv.InsuranceProviderID, &inv.IssuedAt,
		&inv.TotalAmount, &inv.DiscountAmount, &inv.PatientShare, &inv.InsuranceShare, &inv.PaidAmount,
		&inv.Status, &inv.ClaimStatus)
}

func (s *sqlStore) GetInvoice(ctx context.Context, hospitalID, id int64) (Invoice, error) {
	var inv Invoice
	err := scanInvoice(s.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE hospital_id=$1 AND id=$2`, hospitalID, id), &inv)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrInvoiceNotFound
	}
	return inv, err
}

// LockInvoices locks the hospital's invoices in id order. Unknown ids are skipped.
func (s *sqlStore) LockInvoices(ctx context.Context, hospitalID int64, ids []int64) ([]Invoice, error) {
	rows, err := s.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE hospital_id=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, hospitalID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// SaveIssued upserts the issued snapshot. Rows already past DRAFT keep their state.
func (s *sqlStore) SaveIssued(ctx context.Context, inv Invoice) (Invoice, error) {
	var out Invoice
	err := scanInvoice(s.db.QueryRow(ctx, `INSERT INTO invoices (id, hospital_id, patient_id, insurance_provider_id, issued_at,
total_amount, discount_amount, patient_share, insurance_share, paid_amount, status, claim_status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  insurance_provider_id=EXCLUDED.insurance_provider_id, issued_at=EXCLUDED.issued_at,
  total_amount=EXCLUDED.total_amount, discount_amount=EXCLUDED.discount_amount,
  patient_share=EXCLUDED.patient_share, insurance_share=EXCLUDED.insurance_share,
  status=EXCLUDED.status, claim_status=EXCLUDED.claim_status, updated_at=NOW()
  WHERE invoices.status='DRAFT'
RETURNING `+invoiceColumns,
		inv.ID, inv.HospitalID, inv.PatientID, inv.InsuranceProviderID, inv.IssuedAt, inv.TotalAmount,
		inv.DiscountAmount, inv.PatientShare, inv.InsuranceShare, inv.Status, inv.ClaimStatus), &out)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.GetInvoice(ctx, inv.HospitalID, inv.ID)
	}
	return out, err
}

// UpdateStatus moves the invoice and its claim. A claim that becomes PAID or
// REJECTED is stamped with on so aging can tell when it stopped being owed.
func (s *sqlStore) UpdateStatus(ctx context.Context, id int64, status InvoiceStatus, claim ClaimStatus, on time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET status=$2, claim_status=$3,
  claim_settled_on = CASE WHEN $3 IN ('PAID','REJECTED') THEN $4::date END, updated_at=NOW()
WHERE id=$1`, id, status, claim, on)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrInvoiceNotFound
	}
	return nil
}

func (s *sqlStore) ApplyPayment(ctx context.Context, id int64, paid decimal.Decimal, status InvoiceStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET paid_amount=$2, status=$3, updated_at=NOW() WHERE id=$1`, id, paid, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrInvoiceNotFound
	}
	return nil
}

// ListBedOccupancy returns stays that occupied a bed on the night of day.
func (s *sqlStore) ListBedOccupancy(ctx context.Context, day time.Time) ([]BedOccupancy, error) {
	rows, err := s.db.Query(ctx, `SELECT encounter_id, hospital_id, patient_id, daily_rate, admitted_at, discharged_at
FROM bed_occupancies
WHERE admitted_at::date <= $1::date AND (discharged_at IS NULL OR discharged_at::date > $1::date)
ORDER BY hospital_id, encounter_id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BedOccupancy
	for rows.Next() {
		var b BedOccupancy
		if err := rows.Scan(&b.EncounterID, &b.HospitalID, &b.PatientID, &b.DailyRate, &b.AdmittedAt, &b.DischargedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
