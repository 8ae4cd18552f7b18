package reports

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

// AgingKind selects receivable or payable aging.
type AgingKind string

const (
	AgingReceivable AgingKind = "RECEIVABLE"
	AgingPayable    AgingKind = "PAYABLE"
)

// ParseAgingKind validates a kind query value.
func ParseAgingKind(raw string) (AgingKind, error) {
	switch k := AgingKind(raw); k {
	case AgingReceivable, AgingPayable:
		return k, nil
	case "":
		return AgingReceivable, nil
	}
	return "", fmt.Errorf("%w: unknown aging kind %q", shared.ErrInvalidInput, raw)
}

// CounterpartyType names who owes or is owed.
type CounterpartyType string

const (
	CounterpartyPatient  CounterpartyType = "PATIENT"
	CounterpartyInsurer  CounterpartyType = "INSURER"
	CounterpartySupplier CounterpartyType = "SUPPLIER"
)

// AgingDocument is one open document with its outstanding amount as of date.
type AgingDocument struct {
	CounterpartyType CounterpartyType
	CounterpartyID   int64
	DocumentID       int64
	DocumentDate     time.Time
	Outstanding      decimal.Decimal
}

// Credit is money received from a counterparty that no document absorbed.
type Credit struct {
	CounterpartyType CounterpartyType `json:"counterparty_type"`
	CounterpartyID   int64            `json:"counterparty_id"`
	Amount           decimal.Decimal  `json:"amount"`
}

// Buckets holds amounts per age band.
type Buckets struct {
	Current decimal.Decimal `json:"0_30"`
	Days60  decimal.Decimal `json:"31_60"`
	Days90  decimal.Decimal `json:"61_90"`
	Days120 decimal.Decimal `json:"91_120"`
	Over120 decimal.Decimal `json:"121_plus"`
	Total   decimal.Decimal `json:"total"`
}

func zeroBuckets() Buckets {
	return Buckets{Current: decimal.Zero, Days60: decimal.Zero, Days90: decimal.Zero, Days120: decimal.Zero, Over120: decimal.Zero, Total: decimal.Zero}
}

// Add places amount into the band for an age in days.
func (b *Buckets) Add(days int, amount decimal.Decimal) {
	switch {
	case days <= 30:
		b.Current = b.Current.Add(amount)
	case days <= 60:
		b.Days60 = b.Days60.Add(amount)
	case days <= 90:
		b.Days90 = b.Days90.Add(amount)
	case days <= 120:
		b.Days120 = b.Days120.Add(amount)
	default:
		b.Over120 = b.Over120.Add(amount)
	}
	b.Total = b.Total.Add(amount)
}

func (b *Buckets) merge(o Buckets) {
	b.Current = b.Current.Add(o.Current)
	b.Days60 = b.Days60.Add(o.Days60)
	b.Days90 = b.Days90.Add(o.Days90)
	b.Days120 = b.Days120.Add(o.Days120)
	b.Over120 = b.Over120.Add(o.Over120)
	b.Total = b.Total.Add(o.Total)
}

func (b *Buckets) round() {
	b.Current = money.Round(b.Current)
	b.Days60 = money.Round(b.Days60)
	b.Days90 = money.Round(b.Days90)
	b.Days120 = money.Round(b.Days120)
	b.Over120 = money.Round(b.Over120)
	b.Total = money.Round(b.Total)
}

// AgingRow is the bucketed outstanding of one counterparty.
type AgingRow struct {
	CounterpartyType CounterpartyType `json:"counterparty_type"`
	CounterpartyID   int64            `json:"counterparty_id"`
	Documents        int              `json:"documents"`
	Buckets
}

// AgingReport groups open documents by counterparty and age.
type AgingReport struct {
	HospitalID       int64           `json:"hospital_id"`
	Kind             AgingKind       `json:"kind"`
	AsOf             time.Time       `json:"as_of"`
	Rows             []AgingRow      `json:"rows"`
	GrandTotal       Buckets         `json:"grand_total"`
	Unallocated      []Credit        `json:"unallocated_credits"`
	TotalUnallocated decimal.Decimal `json:"total_unallocated"`
}

// AgeInDays counts whole calendar days from documentDate to asOf.
func AgeInDays(asOf, documentDate time.Time) int {
	a := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(documentDate.Year(), documentDate.Month(), documentDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(a.Sub(d).Hours() / 24)
}

type counterparty struct {
	kind CounterpartyType
	id   int64
}

// BuildAging buckets documents per counterparty. Documents with nothing
// outstanding are ignored. The grand total is the sum of the rows.
func BuildAging(hospitalID int64, kind AgingKind, asOf time.Time, docs []AgingDocument, credits []Credit) AgingReport {
	rows := make(map[counterparty]*AgingRow)
	for _, d := range docs {
		if !d.Outstanding.IsPositive() {
			continue
		}
		key := counterparty{d.CounterpartyType, d.CounterpartyID}
		row, ok := rows[key]
		if !ok {
			row = &AgingRow{CounterpartyType: d.CounterpartyType, CounterpartyID: d.CounterpartyID, Buckets: zeroBuckets()}
			rows[key] = row
		}
		row.Add(AgeInDays(asOf, d.DocumentDate), d.Outstanding)
		row.Documents++
	}

	report := AgingReport{
		HospitalID:       hospitalID,
		Kind:             kind,
		AsOf:             asOf,
		Rows:             make([]AgingRow, 0, len(rows)),
		GrandTotal:       zeroBuckets(),
		Unallocated:      make([]Credit, 0, len(credits)),
		TotalUnallocated: decimal.Zero,
	}
	for _, row := range rows {
		row.round()
		report.Rows = append(report.Rows, *row)
	}
	slices.SortFunc(report.Rows, func(a, b AgingRow) int {
		return cmp.Or(cmp.Compare(a.CounterpartyType, b.CounterpartyType), cmp.Compare(a.CounterpartyID, b.CounterpartyID))
	})
	for _, row := range report.Rows {
		report.GrandTotal.merge(row.Buckets)
	}
	for _, c := range credits {
		if !c.Amount.IsPositive() {
			continue
		}
		c.Amount = money.Round(c.Amount)
		report.Unallocated = append(report.Unallocated, c)
		report.TotalUnallocated = report.TotalUnallocated.Add(c.Amount)
	}
	slices.SortFunc(report.Unallocated, func(a, b Credit) int {
		return cmp.Or(cmp.Compare(a.CounterpartyType, b.CounterpartyType), cmp.Compare(a.CounterpartyID, b.CounterpartyID))
	})
	return report
}
