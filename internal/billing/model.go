// Package billing holds the invoice state the ledger engine shares with the
// billing collaborator: issuance postings, settlement and payment status.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

// InvoiceStatus is the patient-facing invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "DRAFT"
	InvoiceIssued        InvoiceStatus = "ISSUED"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoiceCancelled     InvoiceStatus = "CANCELLED"
)

// ClaimStatus tracks the insurer-facing portion of an invoice.
type ClaimStatus string

const (
	ClaimNone      ClaimStatus = "NONE"
	ClaimPending   ClaimStatus = "PENDING"
	ClaimSubmitted ClaimStatus = "SUBMITTED"
	ClaimPaid      ClaimStatus = "PAID"
	ClaimRejected  ClaimStatus = "REJECTED"
)

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimPending:   {ClaimSubmitted, ClaimPaid, ClaimRejected},
	ClaimSubmitted: {ClaimPaid, ClaimRejected},
	ClaimRejected:  {ClaimSubmitted},
}

// CanTransition reports whether the claim may move from c to next.
func (c ClaimStatus) CanTransition(next ClaimStatus) bool {
	for _, allowed := range claimTransitions[c] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseClaimStatus validates a settlement target status.
func ParseClaimStatus(raw string) (ClaimStatus, error) {
	switch s := ClaimStatus(raw); s {
	case ClaimSubmitted, ClaimPaid, ClaimRejected, ClaimPending:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown claim status %q", shared.ErrInvalidInput, raw)
}

// RevenueSource classifies billed services for revenue recognition.
type RevenueSource string

const (
	RevenueServices  RevenueSource = "SERVICES"
	RevenuePharmacy  RevenueSource = "PHARMACY"
	RevenueLab       RevenueSource = "LAB"
	RevenueRadiology RevenueSource = "RADIOLOGY"
	RevenueBed       RevenueSource = "BED"
	RevenueSurgery   RevenueSource = "SURGERY"
)

// RevenueLine is the part of an invoice total attributed to one source.
type RevenueLine struct {
	Source RevenueSource   `json:"source" validate:"required,oneof=SERVICES PHARMACY LAB RADIOLOGY BED SURGERY"`
	Amount decimal.Decimal `json:"amount"`
}

// Invoice is the engine's view of a patient invoice.
type Invoice struct {
	ID                  int64           `json:"id"`
	HospitalID          int64           `json:"hospital_id"`
	PatientID           int64           `json:"patient_id"`
	InsuranceProviderID *int64          `json:"insurance_provider_id,omitempty"`
	IssuedAt            time.Time       `json:"issued_at"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	PatientShare        decimal.Decimal `json:"patient_share"`
	InsuranceShare      decimal.Decimal `json:"insurance_share"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	Status              InvoiceStatus   `json:"status"`
	ClaimStatus         ClaimStatus     `json:"claim_status"`
}

// NetTotal is the amount owed after discount.
func (i Invoice) NetTotal() decimal.Decimal {
	return i.TotalAmount.Sub(i.DiscountAmount)
}

// PatientOutstanding is the unpaid patient share, never negative.
func (i Invoice) PatientOutstanding() decimal.Decimal {
	out := i.PatientShare.Sub(i.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Settleable reports whether the invoice can take part in claim settlement.
func (i Invoice) Settleable() bool {
	if i.Status == InvoiceDraft || i.Status == InvoiceCancelled {
		return false
	}
	return i.InsuranceShare.IsPositive()
}

// CheckShares verifies patientShare + insuranceShare == total - discount within tolerance.
func (i Invoice) CheckShares(tolerance decimal.Decimal) error {
	if i.TotalAmount.IsNegative() || i.DiscountAmount.IsNegative() || i.PatientShare.IsNegative() || i.InsuranceShare.IsNegative() {
		return fmt.Errorf("%w: invoice %d has negative amounts", shared.ErrShareMismatch, i.ID)
	}
	if i.DiscountAmount.GreaterThan(i.TotalAmount) {
		return fmt.Errorf("%w: invoice %d discount exceeds total", shared.ErrShareMismatch, i.ID)
	}
	shares := i.PatientShare.Add(i.InsuranceShare)
	if !money.WithinTolerance(shares, i.NetTotal(), tolerance) {
		return fmt.Errorf("%w: invoice %d shares %s != net %s", shared.ErrShareMismatch, i.ID, money.Format(shares), money.Format(i.NetTotal()))
	}
	return nil
}

// StatusForPaid applies the tolerance rule: PAID once paid covers the patient
// share less tolerance, PARTIALLY_PAID otherwise.
func StatusForPaid(paid, patientShare, tolerance decimal.Decimal) InvoiceStatus {
	if paid.GreaterThanOrEqual(patientShare.Sub(tolerance)) {
		return InvoicePaid
	}
	return InvoicePartiallyPaid
}

// BedOccupancy is one inpatient stay billable per night.
type BedOccupancy struct {
	EncounterID  int64           `json:"encounter_id"`
	HospitalID   int64           `json:"hospital_id"`
	PatientID    int64           `json:"patient_id"`
	DailyRate    decimal.Decimal `json:"daily_rate"`
	AdmittedAt   time.Time       `json:"admitted_at"`
	DischargedAt *time.Time      `json:"discharged_at,omitempty"`
}
