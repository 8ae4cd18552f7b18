package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrPeriodNotOpen indicates no open period covers the posting date.
	ErrPeriodNotOpen = errors.New("accounting: no open financial period covers the date")
	// ErrSequenceViolation indicates periods or years were closed out of date order.
	ErrSequenceViolation = errors.New("accounting: periods must be closed in date order")
	// ErrUnbalancedEntry indicates debit != credit.
	ErrUnbalancedEntry = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidLine indicates a malformed journal line.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("accounting: invalid input")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = errors.New("accounting: journal entry not found")
	// ErrReversalOfReversal indicates an attempt to reverse a reversing entry.
	ErrReversalOfReversal = errors.New("accounting: reversing entries cannot be reversed")
	// ErrReversalBeforeOriginal indicates a reversal dated before its original.
	ErrReversalBeforeOriginal = errors.New("accounting: reversal cannot be dated before the original entry")
	// ErrDuplicateSource indicates a concurrent posting won the idempotency key.
	ErrDuplicateSource = errors.New("accounting: source already posted")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountInactive indicates a posting against a deactivated account.
	ErrAccountInactive = errors.New("accounting: account is inactive")
	// ErrDuplicateAccountCode indicates a code clash inside one hospital.
	ErrDuplicateAccountCode = errors.New("accounting: account code already exists")
	// ErrPeriodNotFound indicates a missing period.
	ErrPeriodNotFound = errors.New("accounting: financial period not found")
	// ErrYearNotFound indicates a missing financial year.
	ErrYearNotFound = errors.New("accounting: financial year not found")
	// ErrYearOverlap indicates a new year intersects an existing one.
	ErrYearOverlap = errors.New("accounting: financial year overlaps an existing year")

	// ErrInvalidRange indicates range end is not after range start.
	ErrInvalidRange = errors.New("cashier: range end must be after range start")
	// ErrNonNegativeCashRequired indicates a negative declared cash amount.
	ErrNonNegativeCashRequired = errors.New("cashier: actual cash must not be negative")
	// ErrShiftOverlap indicates the operator already closed an overlapping range.
	ErrShiftOverlap = errors.New("cashier: shift range overlaps an existing closing")

	// ErrNoEligibleInvoices indicates the settlement selection has no insured invoices.
	ErrNoEligibleInvoices = errors.New("claims: no eligible invoices in selection")
	// ErrInvalidClaimTransition indicates a claim status change outside the lifecycle.
	ErrInvalidClaimTransition = errors.New("claims: invalid claim status transition")
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
	// ErrShareMismatch indicates patient and insurer shares do not add up to the net total.
	ErrShareMismatch = errors.New("billing: shares do not match invoice net total")

	// ErrPlanNotFound indicates a missing coverage plan.
	ErrPlanNotFound = errors.New("coverage: plan not found")
	// ErrInvalidCopay indicates a copay value outside its domain.
	ErrInvalidCopay = errors.New("coverage: invalid copay")
)

// ConfigurationError reports a system account key that cannot be resolved for a hospital.
// It is fatal for the posting and must be fixed by an administrator.
type ConfigurationError struct {
	HospitalID int64
	Key        string
	AccountID  int64
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.AccountID != 0 {
		return fmt.Sprintf("accounting: system account %s for hospital %d maps to account %d which is %s", e.Key, e.HospitalID, e.AccountID, e.Reason)
	}
	return fmt.Sprintf("accounting: system account %s for hospital %d is %s", e.Key, e.HospitalID, e.Reason)
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
