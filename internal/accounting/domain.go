package accounting

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

// SourceModule identifies the subsystem that triggered an entry.
type SourceModule string

const (
	SourceBilling   SourceModule = "BILLING"
	SourceCashier   SourceModule = "CASHIER"
	SourceInventory SourceModule = "INVENTORY"
	SourceManual    SourceModule = "MANUAL"
	SourceOpening   SourceModule = "OPENING"
	SourceClosing   SourceModule = "CLOSING"
	SourcePayroll   SourceModule = "PAYROLL"
)

// SourceModules lists every source module.
var SourceModules = []SourceModule{
	SourceBilling, SourceCashier, SourceInventory, SourceManual, SourceOpening, SourceClosing, SourcePayroll,
}

// Valid reports whether m is a known source module.
func (m SourceModule) Valid() bool {
	switch m {
	case SourceBilling, SourceCashier, SourceInventory, SourceManual, SourceOpening, SourceClosing, SourcePayroll:
		return true
	}
	return false
}

// ParseSourceModule normalizes raw into a SourceModule.
func ParseSourceModule(raw string) (SourceModule, error) {
	m := SourceModule(strings.ToUpper(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown source module %q", shared.ErrInvalidInput, raw)
	}
	return m, nil
}

// Posting purposes used by the engine's collaborators.
const (
	PurposeInvoiceIssued   = "INVOICE_ISSUED"
	PurposeCOGS            = "COGS"
	PurposeClaimSettlement = "CLAIM_SETTLEMENT"
	PurposePayment         = "PAYMENT"
	purposeBedCharge       = "BED_CHARGE:"
	purposeReversal        = "REVERSAL:"
)

// BedChargePurpose scopes a nightly accrual to one service day.
func BedChargePurpose(day time.Time) string {
	return purposeBedCharge + day.UTC().Format(time.DateOnly)
}

// ReversalPurpose ties a reversing entry to the entry it reverses.
func ReversalPurpose(entryID int64) string {
	return purposeReversal + strconv.FormatInt(entryID, 10)
}

// JournalEntry is an immutable balanced posting.
type JournalEntry struct {
	ID              int64         `json:"id"`
	HospitalID      int64         `json:"hospital_id"`
	Number          int64         `json:"number"`
	PeriodID        int64         `json:"period_id"`
	Date            time.Time     `json:"date"`
	Description     string        `json:"description"`
	SourceModule    SourceModule  `json:"source_module"`
	SourceID        uuid.UUID     `json:"source_id"`
	Purpose         string        `json:"purpose"`
	ReversesEntryID *int64        `json:"reverses_entry_id,omitempty"`
	PostedBy        int64         `json:"posted_by"`
	PostedAt        time.Time     `json:"posted_at"`
	Lines           []JournalLine `json:"lines,omitempty"`
}

// IsReversal reports whether the entry reverses another entry.
func (e JournalEntry) IsReversal() bool {
	return e.ReversesEntryID != nil
}

// Totals returns the debit and credit sums of the entry lines.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID          int64           `json:"id"`
	EntryID     int64           `json:"entry_id"`
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// PostingLine names its account either directly or through a system key.
type PostingLine struct {
	AccountID   int64           `json:"account_id,omitempty"`
	AccountKey  mappings.Key    `json:"account_key,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// Debit builds a debit line against a system key.
func Debit(key mappings.Key, amount decimal.Decimal, description string) PostingLine {
	return PostingLine{AccountKey: key, Debit: amount, Description: description}
}

// Credit builds a credit line against a system key.
func Credit(key mappings.Key, amount decimal.Decimal, description string) PostingLine {
	return PostingLine{AccountKey: key, Credit: amount, Description: description}
}

// NonZero drops lines that carry no amount, so callers can build postings
// from optional components such as an absent discount.
func NonZero(lines ...PostingLine) []PostingLine {
	out := make([]PostingLine, 0, len(lines))
	for _, l := range lines {
		if l.Debit.IsZero() && l.Credit.IsZero() {
			continue
		}
		out = append(out, l)
	}
	return out
}

// PostingInput describes one journal entry to create.
type PostingInput struct {
	HospitalID   int64
	Date         time.Time
	Description  string
	SourceModule SourceModule
	SourceID     uuid.UUID
	Purpose      string
	ActorID      int64
	Lines        []PostingLine

	reversesEntryID *int64
}

// Validate checks structure and balance. It touches no storage.
func (in PostingInput) Validate() error {
	if in.HospitalID <= 0 {
		return fmt.Errorf("%w: hospital required", shared.ErrInvalidInput)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: entry date required", shared.ErrInvalidInput)
	}
	if !in.SourceModule.Valid() {
		return fmt.Errorf("%w: unknown source module %q", shared.ErrInvalidInput, in.SourceModule)
	}
	if in.SourceID != uuid.Nil && in.Purpose == "" {
		return fmt.Errorf("%w: purpose required when a source id is given", shared.ErrInvalidInput)
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if (line.AccountID == 0) == (line.AccountKey == "") {
			return fmt.Errorf("%w: line %d must name exactly one of account id or system key", shared.ErrInvalidLine, idx+1)
		}
		if line.AccountKey != "" && !line.AccountKey.Valid() {
			return fmt.Errorf("%w: line %d has unknown system key %q", shared.ErrInvalidLine, idx+1, line.AccountKey)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative amount", shared.ErrInvalidLine, idx+1)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d needs either a debit or a credit", shared.ErrInvalidLine, idx+1)
		}
		if !money.HasScale(line.Debit) || !money.HasScale(line.Credit) {
			return fmt.Errorf("%w: line %d has more than %d decimals", shared.ErrInvalidLine, idx+1, money.Scale)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s, credit %s", shared.ErrUnbalancedEntry, money.Format(debit), money.Format(credit))
	}
	return nil
}

// PostingResult reports the entry and whether it already existed.
type PostingResult struct {
	Entry    JournalEntry `json:"entry"`
	Replayed bool         `json:"replayed"`
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	HospitalID int64
	EntryID    int64
	ActorID    int64
	Reason     string
	Date       *time.Time
}

// EntryFilter narrows an entry listing.
type EntryFilter struct {
	HospitalID   int64
	From         time.Time
	To           time.Time
	SourceModule SourceModule
	Limit        int
}

// SourceRef derives the deterministic source id of a domain object.
func SourceRef(kind string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", kind, id)))
}

// SourceRefSet derives one source id for a set of objects regardless of order.
func SourceRefSet(kind string, ids []int64) uuid.UUID {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return uuid.NewSHA1(uuid.Nil, []byte(kind+":"+strings.Join(parts, ",")))
}
