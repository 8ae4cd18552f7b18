package cashier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/money"
	platformshared "github.com/saraya-erp/saraya-erp/internal/shared"
)

// AuditPort records closings.
type AuditPort interface {
	Record(ctx context.Context, log platformshared.AuditLog) error
}

// CloseInput declares the counted cash for an operator window.
type CloseInput struct {
	HospitalID int64
	OperatorID int64
	RangeStart time.Time
	RangeEnd   time.Time
	ActualCash decimal.Decimal
	Note       string
	ActorID    int64
}

// PaymentResult reports a recorded payment.
type PaymentResult struct {
	Payment  Payment                 `json:"payment"`
	Entry    accounting.JournalEntry `json:"entry"`
	Invoice  *billing.Invoice        `json:"invoice,omitempty"`
	Replayed bool                    `json:"replayed"`
}

// Service reconciles cashier shifts and records collections.
type Service struct {
	uow       UnitOfWork
	poster    billing.Poster
	tolerance decimal.Decimal
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the cashier service.
func NewService(uow UnitOfWork, poster billing.Poster, tolerance decimal.Decimal, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, poster: poster, tolerance: tolerance, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CloseShift computes the system cash total for [RangeStart, RangeEnd) and
// stores an immutable closing. Overlapping closings for the operator fail.
func (s *Service) CloseShift(ctx context.Context, in CloseInput) (ShiftClosing, error) {
	if in.HospitalID <= 0 || in.OperatorID <= 0 {
		return ShiftClosing{}, fmt.Errorf("%w: hospital and operator required", shared.ErrInvalidInput)
	}
	if err := ValidateRange(in.RangeStart, in.RangeEnd); err != nil {
		return ShiftClosing{}, err
	}
	if in.ActualCash.IsNegative() {
		return ShiftClosing{}, shared.ErrNonNegativeCashRequired
	}
	if !money.HasScale(in.ActualCash) {
		return ShiftClosing{}, fmt.Errorf("%w: actual cash has more than %d decimals", shared.ErrInvalidInput, money.Scale)
	}
	actor := in.ActorID
	if actor == 0 {
		actor = in.OperatorID
	}
	var closing ShiftClosing
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		cash := tx.Cash()
		if err := cash.LockOperator(ctx, in.HospitalID, in.OperatorID); err != nil {
			return err
		}
		overlap, err := cash.HasOverlap(ctx, in.HospitalID, in.OperatorID, in.RangeStart, in.RangeEnd)
		if err != nil {
			return err
		}
		if overlap {
			return shared.ErrShiftOverlap
		}
		totals, err := cash.Totals(ctx, in.HospitalID, in.OperatorID, in.RangeStart, in.RangeEnd)
		if err != nil {
			return err
		}
		report := BuildReport(in.HospitalID, in.OperatorID, in.RangeStart, in.RangeEnd, totals)
		closing, err = cash.InsertClosing(ctx, ShiftClosing{
			HospitalID:      in.HospitalID,
			OperatorID:      in.OperatorID,
			RangeStart:      in.RangeStart,
			RangeEnd:        in.RangeEnd,
			SystemCashTotal: report.SystemCashTotal,
			ActualCashTotal: in.ActualCash,
			Difference:      in.ActualCash.Sub(report.SystemCashTotal),
			Note:            strings.TrimSpace(in.Note),
			ClosedBy:        actor,
			ClosedAt:        s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return ShiftClosing{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, platformshared.AuditLog{
			HospitalID: in.HospitalID,
			ActorID:    actor,
			Action:     "cashier.close_shift",
			Entity:     "cashier_shift_closing",
			EntityID:   strconv.FormatInt(closing.ID, 10),
			Meta: map[string]any{
				"operator_id": in.OperatorID,
				"system":      money.Format(closing.SystemCashTotal),
				"actual":      money.Format(closing.ActualCashTotal),
				"difference":  money.Format(closing.Difference),
			},
			At: s.now(),
		}); err != nil {
			s.logger.Warn("audit shift closing", slog.Any("error", err))
		}
	}
	if !closing.Difference.IsZero() {
		s.logger.Warn("cashier shift difference",
			slog.Int64("hospital_id", in.HospitalID),
			slog.Int64("operator_id", in.OperatorID),
			slog.String("difference", money.Format(closing.Difference)))
	}
	return closing, nil
}

// ShiftReport returns the same totals CloseShift would record, without closing.
func (s *Service) ShiftReport(ctx context.Context, hospitalID, operatorID int64, start, end time.Time) (ShiftReport, error) {
	if err := ValidateRange(start, end); err != nil {
		return ShiftReport{}, err
	}
	var report ShiftReport
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		totals, err := tx.Cash().Totals(ctx, hospitalID, operatorID, start, end)
		if err != nil {
			return err
		}
		report = BuildReport(hospitalID, operatorID, start, end, totals)
		return nil
	})
	return report, err
}

// ListClosings returns recent closings of an operator.
func (s *Service) ListClosings(ctx context.Context, hospitalID, operatorID int64, limit int) ([]ShiftClosing, error) {
	var out []ShiftClosing
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Cash().ListClosings(ctx, hospitalID, operatorID, limit)
		return err
	})
	return out, err
}

// RecordPayment stores a collection, applies it to the invoice up to the
// patient outstanding and posts the cash entry, all in one transaction.
// The excess stays as unallocated patient credit. Replays return the
// original result.
func (s *Service) RecordPayment(ctx context.Context, p Payment) (PaymentResult, error) {
	if p.ID <= 0 || p.HospitalID <= 0 || p.PatientID <= 0 || p.ReceivedBy <= 0 {
		return PaymentResult{}, fmt.Errorf("%w: payment, hospital, patient and cashier required", shared.ErrInvalidInput)
	}
	if !p.Amount.IsPositive() || !money.HasScale(p.Amount) {
		return PaymentResult{}, fmt.Errorf("%w: payment amount must be positive with at most %d decimals", shared.ErrInvalidInput, money.Scale)
	}
	method, err := ParseMethod(string(p.Method))
	if err != nil {
		return PaymentResult{}, err
	}
	p.Method = method
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = s.now().UTC()
	}
	posting := accounting.PostingInput{
		HospitalID:   p.HospitalID,
		Date:         p.ReceivedAt,
		Description:  fmt.Sprintf("Payment %d (%s)", p.ID, p.Method),
		SourceModule: accounting.SourceCashier,
		SourceID:     accounting.SourceRef("PAYMENT", p.ID),
		Purpose:      accounting.PurposePayment,
		ActorID:      p.ReceivedBy,
		Lines: []accounting.PostingLine{
			accounting.Debit(p.Method.DebitKey(), p.Amount, "Collection"),
			accounting.Credit(mappings.KeyPatientReceivable, p.Amount, "Patient payment"),
		},
	}
	var result PaymentResult
	err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		existing, ok, err := tx.Ledger().FindEntryBySource(ctx, posting.HospitalID, posting.SourceModule, posting.SourceID, posting.Purpose)
		if err != nil {
			return err
		}
		if ok {
			stored, err := tx.Cash().GetPayment(ctx, p.HospitalID, p.ID)
			if err != nil {
				return err
			}
			result = PaymentResult{Payment: stored, Entry: existing, Replayed: true}
			return nil
		}

		p.Allocated = decimal.Zero
		if p.InvoiceID != nil {
			locked, err := tx.Invoices().LockInvoices(ctx, p.HospitalID, []int64{*p.InvoiceID})
			if err != nil {
				return err
			}
			if len(locked) == 0 {
				return shared.ErrInvoiceNotFound
			}
			inv := locked[0]
			if inv.Status == billing.InvoiceDraft || inv.Status == billing.InvoiceCancelled {
				return fmt.Errorf("%w: invoice %d is %s", shared.ErrInvalidInput, inv.ID, inv.Status)
			}
			p.Allocated = money.Min(p.Amount, inv.PatientOutstanding())
			if p.Allocated.IsPositive() {
				inv.PaidAmount = inv.PaidAmount.Add(p.Allocated)
				inv.Status = billing.StatusForPaid(inv.PaidAmount, inv.PatientShare, s.tolerance)
				if err := tx.Invoices().ApplyPayment(ctx, inv.ID, inv.PaidAmount, inv.Status); err != nil {
					return err
				}
			}
			result.Invoice = &inv
		}
		inserted, err := tx.Cash().InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("%w: payment %d", shared.ErrDuplicateSource, p.ID)
		}
		posted, err := s.poster.PostWithin(ctx, tx.Ledger(), posting)
		if err != nil {
			return err
		}
		result.Payment = p
		result.Entry = posted.Entry
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.poster.AfterCommit(ctx, accounting.PostingResult{Entry: result.Entry, Replayed: result.Replayed})
	return result, nil
}
