// Package cashier records patient collections and reconciles cashier shifts.
package cashier

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

// Method is how a payment was tendered.
type Method string

const (
	MethodCash     Method = "CASH"
	MethodCard     Method = "CARD"
	MethodTransfer Method = "TRANSFER"
)

// ParseMethod validates a payment method.
func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case MethodCash, MethodCard, MethodTransfer:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", shared.ErrInvalidInput, raw)
}

// DebitKey is the system account that receives the money.
func (m Method) DebitKey() mappings.Key {
	if m == MethodCash {
		return mappings.KeyCashOnHand
	}
	return mappings.KeyBank
}

// Payment is a patient collection taken by a cashier.
type Payment struct {
	ID         int64           `json:"id"`
	HospitalID int64           `json:"hospital_id"`
	PatientID  int64           `json:"patient_id"`
	InvoiceID  *int64          `json:"invoice_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Allocated  decimal.Decimal `json:"allocated"`
	Method     Method          `json:"method"`
	ReceivedBy int64           `json:"received_by"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Unallocated is the part of the payment held as patient credit.
func (p Payment) Unallocated() decimal.Decimal {
	return p.Amount.Sub(p.Allocated)
}

// MethodTotal aggregates payments of one method.
type MethodTotal struct {
	Method Method          `json:"method"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

// ShiftClosing is an immutable cash count for an operator's time window.
type ShiftClosing struct {
	ID              int64           `json:"id"`
	HospitalID      int64           `json:"hospital_id"`
	OperatorID      int64           `json:"operator_id"`
	RangeStart      time.Time       `json:"range_start"`
	RangeEnd        time.Time       `json:"range_end"`
	SystemCashTotal decimal.Decimal `json:"system_cash_total"`
	ActualCashTotal decimal.Decimal `json:"actual_cash_total"`
	Difference      decimal.Decimal `json:"difference"`
	Note            string          `json:"note,omitempty"`
	ClosedBy        int64           `json:"closed_by"`
	ClosedAt        time.Time       `json:"closed_at"`
}

// ShiftReport summarises an operator's collections without closing.
type ShiftReport struct {
	HospitalID      int64           `json:"hospital_id"`
	OperatorID      int64           `json:"operator_id"`
	RangeStart      time.Time       `json:"range_start"`
	RangeEnd        time.Time       `json:"range_end"`
	SystemCashTotal decimal.Decimal `json:"system_cash_total"`
	CashCount       int             `json:"cash_count"`
	ByMethod        []MethodTotal   `json:"by_method"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
}

// BuildReport folds method totals into a report.
func BuildReport(hospitalID, operatorID int64, start, end time.Time, totals []MethodTotal) ShiftReport {
	report := ShiftReport{
		HospitalID:      hospitalID,
		OperatorID:      operatorID,
		RangeStart:      start,
		RangeEnd:        end,
		SystemCashTotal: decimal.Zero,
		ByMethod:        totals,
		GrandTotal:      decimal.Zero,
	}
	for _, t := range totals {
		report.GrandTotal = report.GrandTotal.Add(t.Total)
		if t.Method == MethodCash {
			report.SystemCashTotal = report.SystemCashTotal.Add(t.Total)
			report.CashCount += t.Count
		}
	}
	return report
}

// ValidateRange enforces end > start.
func ValidateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return shared.ErrInvalidRange
	}
	return nil
}

// Overlaps reports whether half-open ranges [a, b) and [c, d) intersect.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}
