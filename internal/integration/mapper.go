package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/cashier"
	"github.com/saraya-erp/saraya-erp/internal/events"
)

// permanent lists failures a redelivery cannot fix. The task is archived
// until someone corrects the cause and re-runs it.
var permanent = []error{
	shared.ErrInvalidInput,
	shared.ErrInvalidLine,
	shared.ErrTooFewLines,
	shared.ErrUnbalancedEntry,
	shared.ErrShareMismatch,
	shared.ErrPeriodNotOpen,
	shared.ErrAccountInactive,
	shared.ErrAccountNotFound,
	shared.ErrNoEligibleInvoices,
	shared.ErrInvalidClaimTransition,
}

// classify marks permanent failures. Everything else, including a lost
// source race or a missing invoice that may still be in flight, retries.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if shared.IsConfigurationError(err) {
		return events.Permanent(err)
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return events.Permanent(err)
		}
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{shared.ErrInvalidInput}, args...)...)
}

func dateOr(ts *time.Time, fallback time.Time) time.Time {
	if ts != nil && !ts.IsZero() {
		return ts.UTC()
	}
	return fallback.UTC()
}

func issueInput(evt events.InvoiceIssued, now time.Time) (billing.IssueInput, error) {
	discount := decimal.Zero
	if evt.DiscountAmount != nil {
		discount = *evt.DiscountAmount
	}
	revenue := make([]billing.RevenueLine, 0, len(evt.Revenue))
	for _, r := range evt.Revenue {
		revenue = append(revenue, billing.RevenueLine{Source: billing.RevenueSource(r.Source), Amount: r.Amount})
	}
	if evt.InsuranceShare.IsPositive() && evt.InsuranceProviderID == nil {
		return billing.IssueInput{}, invalid("invoice %d has an insurance share but no provider", evt.InvoiceID)
	}
	return billing.IssueInput{
		InvoiceID:           evt.InvoiceID,
		HospitalID:          evt.HospitalID,
		PatientID:           evt.PatientID,
		InsuranceProviderID: evt.InsuranceProviderID,
		ActorID:             evt.ActorID,
		IssuedAt:            dateOr(evt.IssuedAt, now),
		TotalAmount:         evt.TotalAmount,
		DiscountAmount:      discount,
		PatientShare:        evt.PatientShare,
		InsuranceShare:      evt.InsuranceShare,
		Revenue:             revenue,
	}, nil
}

func payment(evt events.PaymentReceived) (cashier.Payment, error) {
	method, err := cashier.ParseMethod(evt.Method)
	if err != nil {
		return cashier.Payment{}, err
	}
	return cashier.Payment{
		ID:         evt.PaymentID,
		HospitalID: evt.HospitalID,
		PatientID:  evt.PatientID,
		InvoiceID:  evt.InvoiceID,
		Amount:     evt.Amount,
		Method:     method,
		ReceivedBy: evt.ReceivedBy,
		ReceivedAt: evt.ReceivedAt,
	}, nil
}
