package shared

import (
	"errors"
	"net/http"

	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
)

// Description is the user facing rendering of an engine error.
type Description struct {
	Status  int
	Code    string
	Title   string
	Message string
}

type described struct {
	target error
	desc   Description
}

var catalogue = []described{
	{ErrPeriodNotOpen, Description{http.StatusUnprocessableEntity, "PERIOD_NOT_OPEN", "Period Not Open",
		"No open financial period covers this date. Choose a date in an open period or ask the finance administrator to open one."}},
	{ErrSequenceViolation, Description{http.StatusConflict, "SEQUENCE_VIOLATION", "Close Out Of Order",
		"Earlier periods are still open. Close them first, in date order."}},
	{ErrUnbalancedEntry, Description{http.StatusBadRequest, "UNBALANCED_ENTRY", "Unbalanced Entry",
		"Total debits must equal total credits."}},
	{ErrTooFewLines, Description{http.StatusBadRequest, "TOO_FEW_LINES", "Invalid Entry",
		"A journal entry needs at least two lines."}},
	{ErrInvalidLine, Description{http.StatusBadRequest, "INVALID_LINE", "Invalid Entry", ""}},
	{ErrInvalidInput, Description{http.StatusBadRequest, "INVALID_INPUT", "Validation Failed", ""}},
	{ErrEntryNotFound, Description{http.StatusNotFound, "ENTRY_NOT_FOUND", "Not Found", "Journal entry not found."}},
	{ErrReversalOfReversal, Description{http.StatusConflict, "REVERSAL_OF_REVERSAL", "Cannot Reverse",
		"This entry already reverses another entry. Post a new entry instead."}},
	{ErrReversalBeforeOriginal, Description{http.StatusUnprocessableEntity, "REVERSAL_BEFORE_ORIGINAL", "Invalid Reversal Date",
		"A reversal must be dated on or after the original entry."}},
	{ErrAccountNotFound, Description{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Not Found", "Account not found."}},
	{ErrAccountInactive, Description{http.StatusUnprocessableEntity, "ACCOUNT_INACTIVE", "Account Inactive",
		"The account is deactivated and cannot receive postings."}},
	{ErrDuplicateAccountCode, Description{http.StatusConflict, "DUPLICATE_ACCOUNT_CODE", "Duplicate", "An account with this code already exists."}},
	{ErrPeriodNotFound, Description{http.StatusNotFound, "PERIOD_NOT_FOUND", "Not Found", "Financial period not found."}},
	{ErrYearNotFound, Description{http.StatusNotFound, "YEAR_NOT_FOUND", "Not Found", "Financial year not found."}},
	{ErrYearOverlap, Description{http.StatusConflict, "YEAR_OVERLAP", "Overlapping Year", "The financial year overlaps an existing year."}},
	{ErrInvalidRange, Description{http.StatusBadRequest, "INVALID_RANGE", "Invalid Range", "The end of the range must be after its start."}},
	{ErrNonNegativeCashRequired, Description{http.StatusBadRequest, "NEGATIVE_CASH", "Invalid Amount", "Declared cash cannot be negative."}},
	{ErrShiftOverlap, Description{http.StatusConflict, "SHIFT_OVERLAP", "Shift Already Closed",
		"A closing already exists for an overlapping time range of this operator."}},
	{ErrNoEligibleInvoices, Description{http.StatusUnprocessableEntity, "NO_ELIGIBLE_INVOICES", "Nothing To Settle",
		"None of the selected invoices has an insurance share."}},
	{ErrInvalidClaimTransition, Description{http.StatusConflict, "INVALID_CLAIM_TRANSITION", "Invalid Claim Status", ""}},
	{ErrInvoiceNotFound, Description{http.StatusNotFound, "INVOICE_NOT_FOUND", "Not Found", "Invoice not found."}},
	{ErrShareMismatch, Description{http.StatusUnprocessableEntity, "SHARE_MISMATCH", "Invalid Invoice", ""}},
	{ErrPlanNotFound, Description{http.StatusNotFound, "PLAN_NOT_FOUND", "Not Found", "Coverage plan not found."}},
	{ErrInvalidCopay, Description{http.StatusUnprocessableEntity, "INVALID_COPAY", "Invalid Coverage Rule", ""}},
}

// Describe maps err onto the catalogue. ok is false for unknown errors.
func Describe(err error) (Description, bool) {
	if err == nil {
		return Description{}, false
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return Description{
			Status:  http.StatusUnprocessableEntity,
			Code:    "CONFIGURATION_ERROR",
			Title:   "Finance Setup Incomplete",
			Message: "System account " + cfgErr.Key + " is " + cfgErr.Reason + ". Contact the finance administrator to complete the account mapping.",
		}, true
	}
	for _, item := range catalogue {
		if errors.Is(err, item.target) {
			desc := item.desc
			if desc.Message == "" {
				desc.Message = err.Error()
			}
			return desc, true
		}
	}
	return Description{}, false
}

// RespondError renders err as a problem document, falling back to the generic mapping.
func RespondError(w http.ResponseWriter, err error) {
	if desc, ok := Describe(err); ok {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  desc.Title,
			Status: desc.Status,
			Detail: desc.Message,
			Code:   desc.Code,
		})
		return
	}
	httpx.RespondError(w, err)
}
