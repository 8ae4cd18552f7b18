package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

var revenueKeys = map[RevenueSource]mappings.Key{
	RevenueServices:  mappings.KeyRevenueServices,
	RevenuePharmacy:  mappings.KeyRevenuePharmacy,
	RevenueLab:       mappings.KeyRevenueLab,
	RevenueRadiology: mappings.KeyRevenueRadiology,
	// Bed nights were recognised by the nightly accrual; invoicing clears the accrual.
	RevenueBed:     mappings.KeyUnbilledRevenue,
	RevenueSurgery: mappings.KeyRevenueSurgery,
}

// IssueInput carries an issued invoice as announced by the billing collaborator.
type IssueInput struct {
	InvoiceID           int64
	HospitalID          int64
	PatientID           int64
	InsuranceProviderID *int64
	ActorID             int64
	IssuedAt            time.Time
	TotalAmount         decimal.Decimal
	DiscountAmount      decimal.Decimal
	PatientShare        decimal.Decimal
	InsuranceShare      decimal.Decimal
	Revenue             []RevenueLine
}

func (in IssueInput) invoice() Invoice {
	claim := ClaimNone
	if in.InsuranceShare.IsPositive() {
		claim = ClaimPending
	}
	return Invoice{
		ID:                  in.InvoiceID,
		HospitalID:          in.HospitalID,
		PatientID:           in.PatientID,
		InsuranceProviderID: in.InsuranceProviderID,
		IssuedAt:            in.IssuedAt,
		TotalAmount:         in.TotalAmount,
		DiscountAmount:      in.DiscountAmount,
		PatientShare:        in.PatientShare,
		InsuranceShare:      in.InsuranceShare,
		PaidAmount:          decimal.Zero,
		Status:              InvoiceIssued,
		ClaimStatus:         claim,
	}
}

// BedCharge is one night of an inpatient stay.
type BedCharge struct {
	EncounterID int64
	HospitalID  int64
	PatientID   int64
	Day         time.Time
	Amount      decimal.Decimal
	ActorID     int64
}

// AccrualSummary reports a nightly accrual run.
type AccrualSummary struct {
	Day      time.Time `json:"day"`
	Posted   int       `json:"posted"`
	Replayed int       `json:"replayed"`
	Failed   int       `json:"failed"`
}

// Service posts billing documents to the ledger.
type Service struct {
	uow       UnitOfWork
	poster    Poster
	tolerance decimal.Decimal
	logger    *slog.Logger
}

// NewService constructs the billing ledger service.
func NewService(uow UnitOfWork, poster Poster, tolerance decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, poster: poster, tolerance: tolerance, logger: logger}
}

// Tolerance is the epsilon used for share checks and paid status.
func (s *Service) Tolerance() decimal.Decimal {
	return s.tolerance
}

// IssueLines builds the issuance posting lines. Any share rounding difference
// within tolerance is booked against DISCOUNT_ALLOWED so the entry balances.
func IssueLines(in IssueInput) ([]accounting.PostingLine, error) {
	revenue := in.Revenue
	if len(revenue) == 0 {
		revenue = []RevenueLine{{Source: RevenueServices, Amount: in.TotalAmount}}
	}
	revenueTotal := decimal.Zero
	credits := make([]accounting.PostingLine, 0, len(revenue))
	for _, r := range revenue {
		key, ok := revenueKeys[r.Source]
		if !ok {
			return nil, fmt.Errorf("%w: unknown revenue source %q", shared.ErrInvalidInput, r.Source)
		}
		if r.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: negative revenue for %s", shared.ErrInvalidInput, r.Source)
		}
		revenueTotal = revenueTotal.Add(r.Amount)
		credits = append(credits, accounting.Credit(key, r.Amount, "Revenue "+string(r.Source)))
	}
	if !revenueTotal.Equal(in.TotalAmount) {
		return nil, fmt.Errorf("%w: revenue breakdown %s != total %s", shared.ErrShareMismatch, money.Format(revenueTotal), money.Format(in.TotalAmount))
	}
	net := in.TotalAmount.Sub(in.DiscountAmount)
	adjustment := in.DiscountAmount.Add(net.Sub(in.PatientShare.Add(in.InsuranceShare)))
	lines := []accounting.PostingLine{
		accounting.Debit(mappings.KeyPatientReceivable, in.PatientShare, "Patient share"),
		accounting.Debit(mappings.KeyInsuranceReceivable, in.InsuranceShare, "Insurance share"),
	}
	if adjustment.IsNegative() {
		lines = append(lines, accounting.Credit(mappings.KeyDiscountAllowed, adjustment.Abs(), "Share rounding"))
	} else {
		lines = append(lines, accounting.Debit(mappings.KeyDiscountAllowed, adjustment, "Discount"))
	}
	return accounting.NonZero(append(lines, credits...)...), nil
}

// Issue records the issued invoice and posts its receivable entry atomically.
// Replaying the same invoice returns the original entry.
func (s *Service) Issue(ctx context.Context, in IssueInput) (accounting.PostingResult, error) {
	if in.InvoiceID <= 0 || in.HospitalID <= 0 || in.PatientID <= 0 {
		return accounting.PostingResult{}, fmt.Errorf("%w: invoice, hospital and patient required", shared.ErrInvalidInput)
	}
	if in.IssuedAt.IsZero() {
		return accounting.PostingResult{}, fmt.Errorf("%w: issue date required", shared.ErrInvalidInput)
	}
	inv := in.invoice()
	if err := inv.CheckShares(s.tolerance); err != nil {
		return accounting.PostingResult{}, err
	}
	lines, err := IssueLines(in)
	if err != nil {
		return accounting.PostingResult{}, err
	}
	posting := accounting.PostingInput{
		HospitalID:   in.HospitalID,
		Date:         in.IssuedAt,
		Description:  fmt.Sprintf("Invoice %d issued", in.InvoiceID),
		SourceModule: accounting.SourceBilling,
		SourceID:     accounting.SourceRef("INVOICE", in.InvoiceID),
		Purpose:      accounting.PurposeInvoiceIssued,
		ActorID:      in.ActorID,
		Lines:        lines,
	}
	if err := posting.Validate(); err != nil {
		return accounting.PostingResult{}, err
	}
	var result accounting.PostingResult
	err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		saved, err := tx.Invoices().SaveIssued(ctx, inv)
		if err != nil {
			return err
		}
		if saved.Status == InvoiceCancelled {
			return fmt.Errorf("%w: invoice %d is cancelled", shared.ErrInvalidInput, in.InvoiceID)
		}
		result, err = s.poster.PostWithin(ctx, tx.Ledger(), posting)
		return err
	})
	if err != nil {
		return accounting.PostingResult{}, err
	}
	s.poster.AfterCommit(ctx, result)
	return result, nil
}

// AccrueBedCharge recognises one night of bed revenue. It is idempotent per
// encounter and day.
func (s *Service) AccrueBedCharge(ctx context.Context, charge BedCharge) (accounting.PostingResult, error) {
	if charge.EncounterID <= 0 || charge.HospitalID <= 0 || charge.Day.IsZero() {
		return accounting.PostingResult{}, fmt.Errorf("%w: encounter, hospital and day required", shared.ErrInvalidInput)
	}
	amount := money.Round(charge.Amount)
	if !amount.IsPositive() {
		return accounting.PostingResult{}, fmt.Errorf("%w: bed charge must be positive", shared.ErrInvalidInput)
	}
	day := charge.Day.UTC()
	posting := accounting.PostingInput{
		HospitalID:   charge.HospitalID,
		Date:         day,
		Description:  fmt.Sprintf("Bed charge encounter %d %s", charge.EncounterID, day.Format(time.DateOnly)),
		SourceModule: accounting.SourceBilling,
		SourceID:     accounting.SourceRef("ENCOUNTER", charge.EncounterID),
		Purpose:      accounting.BedChargePurpose(day),
		ActorID:      charge.ActorID,
		Lines: []accounting.PostingLine{
			accounting.Debit(mappings.KeyUnbilledRevenue, amount, "Accrued bed night"),
			accounting.Credit(mappings.KeyRevenueBed, amount, "Bed revenue"),
		},
	}
	var result accounting.PostingResult
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		result, err = s.poster.PostWithin(ctx, tx.Ledger(), posting)
		return err
	})
	if errors.Is(err, shared.ErrDuplicateSource) {
		// lost a race with a concurrent run; the winner's entry is authoritative
		err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			result, err = s.poster.PostWithin(ctx, tx.Ledger(), posting)
			return err
		})
	}
	if err != nil {
		return accounting.PostingResult{}, err
	}
	s.poster.AfterCommit(ctx, result)
	return result, nil
}

// AccrueBedCharges posts one accrual per occupied bed for day. Failures are
// logged and joined; other stays are still accrued.
func (s *Service) AccrueBedCharges(ctx context.Context, day time.Time, actorID int64) (AccrualSummary, error) {
	summary := AccrualSummary{Day: day.UTC()}
	var stays []BedOccupancy
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		stays, err = tx.Invoices().ListBedOccupancy(ctx, day)
		return err
	})
	if err != nil {
		return summary, err
	}
	var errs []error
	for _, stay := range stays {
		result, err := s.AccrueBedCharge(ctx, BedCharge{
			EncounterID: stay.EncounterID,
			HospitalID:  stay.HospitalID,
			PatientID:   stay.PatientID,
			Day:         day,
			Amount:      stay.DailyRate,
			ActorID:     actorID,
		})
		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, fmt.Errorf("encounter %d: %w", stay.EncounterID, err))
			s.logger.Error("bed charge accrual failed", slog.Int64("encounter_id", stay.EncounterID), slog.Any("error", err))
		case result.Replayed:
			summary.Replayed++
		default:
			summary.Posted++
		}
	}
	return summary, errors.Join(errs...)
}
