// Package reports builds read-only views over the ledger: account ledgers,
// aging and the trial balance.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/accounts"
)

// LedgerAccount identifies the account a ledger is built for.
type LedgerAccount struct {
	ID         int64                `json:"id"`
	HospitalID int64                `json:"hospital_id"`
	Code       string               `json:"code"`
	Name       string               `json:"name"`
	Type       accounts.AccountType `json:"type"`
}

// Posting is one journal line as read for reporting.
type Posting struct {
	EntryID     int64           `json:"entry_id"`
	EntryNumber int64           `json:"entry_number"`
	LineID      int64           `json:"line_id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// LedgerLine is a posting with the balance after it.
type LedgerLine struct {
	Posting
	Balance decimal.Decimal `json:"balance"`
}

// Ledger is the general ledger of one account over [From, To].
type Ledger struct {
	Account        LedgerAccount   `json:"account"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Lines          []LedgerLine    `json:"lines"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// BuildLedger runs balances forward from the opening sums. postings must be
// ordered by date, entry number and line id.
func BuildLedger(account LedgerAccount, from, to time.Time, openingDebit, openingCredit decimal.Decimal, postings []Posting) Ledger {
	balance := account.Type.SignedAmount(openingDebit, openingCredit)
	out := Ledger{
		Account:        account,
		From:           from,
		To:             to,
		OpeningBalance: balance,
		Lines:          make([]LedgerLine, 0, len(postings)),
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
	}
	for _, p := range postings {
		balance = balance.Add(account.Type.SignedAmount(p.Debit, p.Credit))
		out.TotalDebit = out.TotalDebit.Add(p.Debit)
		out.TotalCredit = out.TotalCredit.Add(p.Credit)
		out.Lines = append(out.Lines, LedgerLine{Posting: p, Balance: balance})
	}
	out.ClosingBalance = balance
	return out
}
