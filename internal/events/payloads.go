package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// RevenueLine attributes part of an invoice total to a revenue stream.
type RevenueLine struct {
	Source string          `json:"source" validate:"required,oneof=SERVICES PHARMACY LAB RADIOLOGY BED SURGERY"`
	Amount decimal.Decimal `json:"amount"`
}

// InvoiceIssued announces a billed invoice with its patient/insurer split.
type InvoiceIssued struct {
	InvoiceID           int64            `json:"invoice_id" validate:"required,gt=0"`
	HospitalID          int64            `json:"hospital_id" validate:"required,gt=0"`
	PatientID           int64            `json:"patient_id" validate:"required,gt=0"`
	ActorID             int64            `json:"actor_id" validate:"required,gt=0"`
	TotalAmount         decimal.Decimal  `json:"total_amount"`
	DiscountAmount      *decimal.Decimal `json:"discount_amount,omitempty"`
	PatientShare        decimal.Decimal  `json:"patient_share"`
	InsuranceShare      decimal.Decimal  `json:"insurance_share"`
	InsuranceProviderID *int64           `json:"insurance_provider_id,omitempty" validate:"omitempty,gt=0"`
	IssuedAt            *time.Time       `json:"issued_at,omitempty"`
	Revenue             []RevenueLine    `json:"revenue,omitempty" validate:"dive"`
}

// DispenseCompleted announces drugs handed out; TotalCost is at cost, not sale price.
type DispenseCompleted struct {
	DispenseID  int64           `json:"dispense_id" validate:"required,gt=0"`
	HospitalID  int64           `json:"hospital_id" validate:"required,gt=0"`
	ActorID     int64           `json:"actor_id" validate:"required,gt=0"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	DispensedAt *time.Time      `json:"dispensed_at,omitempty"`
}

// ClaimsSettlementRequested asks for a consolidated claim status change.
type ClaimsSettlementRequested struct {
	HospitalID   int64      `json:"hospital_id" validate:"required,gt=0"`
	InvoiceIDs   []int64    `json:"invoice_ids" validate:"required,min=1,dive,gt=0"`
	TargetStatus string     `json:"target_status" validate:"required,oneof=PENDING SUBMITTED PAID REJECTED"`
	ActorID      int64      `json:"actor_id" validate:"required,gt=0"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
}

// PaymentReceived announces money taken at a cashier desk.
type PaymentReceived struct {
	PaymentID  int64           `json:"payment_id" validate:"required,gt=0"`
	HospitalID int64           `json:"hospital_id" validate:"required,gt=0"`
	PatientID  int64           `json:"patient_id" validate:"required,gt=0"`
	InvoiceID  *int64          `json:"invoice_id,omitempty" validate:"omitempty,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"required,oneof=CASH CARD TRANSFER"`
	ReceivedBy int64           `json:"received_by" validate:"required,gt=0"`
	ReceivedAt time.Time       `json:"received_at" validate:"required"`
}

// BedChargeAccrued announces one occupied bed night.
type BedChargeAccrued struct {
	EncounterID int64           `json:"encounter_id" validate:"required,gt=0"`
	HospitalID  int64           `json:"hospital_id" validate:"required,gt=0"`
	PatientID   int64           `json:"patient_id" validate:"required,gt=0"`
	Day         time.Time       `json:"day" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	ActorID     int64           `json:"actor_id"`
}
