// Package claims settles insurer claims against issued invoices.
package claims

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/money"
	platformshared "github.com/saraya-erp/saraya-erp/internal/shared"
)

// AuditPort records settlement batches.
type AuditPort interface {
	Record(ctx context.Context, log platformshared.AuditLog) error
}

// ReportInvalidator drops cached report views after claim state changes.
type ReportInvalidator interface {
	Invalidate(ctx context.Context, hospitalID int64)
}

// MetricsPort counts settlement outcomes.
type MetricsPort interface {
	ObserveSettlement(status, outcome string, invoices int)
}

// SettleInput selects invoices and the claim status to apply.
type SettleInput struct {
	HospitalID int64
	InvoiceIDs []int64
	Status     billing.ClaimStatus
	ActorID    int64
	Date       *time.Time
}

// SettledInvoice is the post-settlement state of one invoice.
type SettledInvoice struct {
	ID             int64                 `json:"id"`
	Status         billing.InvoiceStatus `json:"status"`
	ClaimStatus    billing.ClaimStatus   `json:"claim_status"`
	InsuranceShare decimal.Decimal       `json:"insurance_share"`
}

// Result summarises a settlement batch.
type Result struct {
	Status   billing.ClaimStatus      `json:"status"`
	Invoices []SettledInvoice         `json:"invoices"`
	Skipped  []int64                  `json:"skipped,omitempty"`
	Total    decimal.Decimal          `json:"total"`
	Entry    *accounting.JournalEntry `json:"entry,omitempty"`
	Replayed bool                     `json:"replayed"`
}

// Service settles claims in consolidated batches.
type Service struct {
	uow       billing.UnitOfWork
	poster    billing.Poster
	tolerance decimal.Decimal
	audit     AuditPort
	metrics   MetricsPort
	reports   ReportInvalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the settlement service.
func NewService(uow billing.UnitOfWork, poster billing.Poster, tolerance decimal.Decimal, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, poster: poster, tolerance: tolerance, audit: audit, logger: logger, now: time.Now}
}

// WithReports invalidates cached reports after every committed batch.
func (s *Service) WithReports(r ReportInvalidator) {
	s.reports = r
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches settlement counters.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// SettleClaims applies status to every eligible invoice in one transaction.
// For PAID it posts a single BANK / INSURANCE_RECEIVABLE entry for the whole
// batch. Any invalid transition aborts the batch.
func (s *Service) SettleClaims(ctx context.Context, in SettleInput) (Result, error) {
	ids := slices.Clone(in.InvoiceIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if in.HospitalID <= 0 || len(ids) == 0 {
		return Result{}, fmt.Errorf("%w: hospital and invoice ids required", shared.ErrInvalidInput)
	}
	switch in.Status {
	case billing.ClaimSubmitted, billing.ClaimPaid, billing.ClaimRejected:
	default:
		return Result{}, fmt.Errorf("%w: cannot settle to %q", shared.ErrInvalidClaimTransition, in.Status)
	}
	date := s.now()
	if in.Date != nil {
		date = *in.Date
	}

	var result Result
	err := s.uow.Do(ctx, func(ctx context.Context, tx billing.Tx) error {
		locked, err := tx.Invoices().LockInvoices(ctx, in.HospitalID, ids)
		if err != nil {
			return err
		}
		eligible, skipped := partition(ids, locked)
		if len(eligible) == 0 {
			return shared.ErrNoEligibleInvoices
		}
		result = Result{Status: in.Status, Skipped: skipped, Total: decimal.Zero}
		eligibleIDs := make([]int64, 0, len(eligible))
		for _, inv := range eligible {
			eligibleIDs = append(eligibleIDs, inv.ID)
			result.Total = result.Total.Add(inv.InsuranceShare)
		}

		var posting accounting.PostingInput
		if in.Status == billing.ClaimPaid {
			posting = settlementPosting(in, eligibleIDs, result.Total, date)
			existing, ok, err := tx.Ledger().FindEntryBySource(ctx, in.HospitalID, posting.SourceModule, posting.SourceID, posting.Purpose)
			if err != nil {
				return err
			}
			if ok {
				result.Entry = &existing
				result.Replayed = true
				result.Invoices = snapshot(eligible)
				return nil
			}
		}

		for _, inv := range eligible {
			if !inv.ClaimStatus.CanTransition(in.Status) {
				return fmt.Errorf("%w: invoice %d claim is %s, cannot become %s",
					shared.ErrInvalidClaimTransition, inv.ID, inv.ClaimStatus, in.Status)
			}
		}

		if in.Status == billing.ClaimPaid {
			posted, err := s.poster.PostWithin(ctx, tx.Ledger(), posting)
			if err != nil {
				return err
			}
			result.Entry = &posted.Entry
			result.Replayed = posted.Replayed
		}

		for i := range eligible {
			inv := &eligible[i]
			status := inv.Status
			if in.Status == billing.ClaimPaid {
				status = billing.StatusForPaid(inv.PaidAmount, inv.PatientShare, s.tolerance)
			}
			if err := tx.Invoices().UpdateStatus(ctx, inv.ID, status, in.Status, date); err != nil {
				return err
			}
			inv.Status = status
			inv.ClaimStatus = in.Status
		}
		result.Invoices = snapshot(eligible)
		return nil
	})
	if err != nil {
		s.observe(in.Status, "rejected", 0)
		return Result{}, err
	}
	if result.Entry != nil {
		s.poster.AfterCommit(ctx, accounting.PostingResult{Entry: *result.Entry, Replayed: result.Replayed})
	}
	if result.Replayed {
		s.observe(in.Status, "replayed", 0)
		return result, nil
	}
	if s.reports != nil {
		s.reports.Invalidate(ctx, in.HospitalID)
	}
	s.observe(in.Status, "committed", len(result.Invoices))
	s.record(ctx, in, result)
	s.logger.Info("claims settled",
		slog.Int64("hospital_id", in.HospitalID),
		slog.String("status", string(in.Status)),
		slog.Int("invoices", len(result.Invoices)),
		slog.String("total", money.Format(result.Total)))
	return result, nil
}

func partition(requested []int64, locked []billing.Invoice) (eligible []billing.Invoice, skipped []int64) {
	found := make(map[int64]billing.Invoice, len(locked))
	for _, inv := range locked {
		found[inv.ID] = inv
	}
	for _, id := range requested {
		inv, ok := found[id]
		if ok && inv.Settleable() {
			eligible = append(eligible, inv)
			continue
		}
		skipped = append(skipped, id)
	}
	return eligible, skipped
}

func settlementPosting(in SettleInput, ids []int64, total decimal.Decimal, date time.Time) accounting.PostingInput {
	return accounting.PostingInput{
		HospitalID:   in.HospitalID,
		Date:         date,
		Description:  fmt.Sprintf("Insurance settlement for %d invoice(s)", len(ids)),
		SourceModule: accounting.SourceBilling,
		SourceID:     accounting.SourceRefSet("CLAIM_BATCH", ids),
		Purpose:      accounting.PurposeClaimSettlement,
		ActorID:      in.ActorID,
		Lines: []accounting.PostingLine{
			accounting.Debit(mappings.KeyBank, total, "Insurer remittance"),
			accounting.Credit(mappings.KeyInsuranceReceivable, total, "Claims settled"),
		},
	}
}

func snapshot(invoices []billing.Invoice) []SettledInvoice {
	out := make([]SettledInvoice, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, SettledInvoice{ID: inv.ID, Status: inv.Status, ClaimStatus: inv.ClaimStatus, InsuranceShare: inv.InsuranceShare})
	}
	return out
}

func (s *Service) observe(status billing.ClaimStatus, outcome string, invoices int) {
	if s.metrics != nil {
		s.metrics.ObserveSettlement(string(status), outcome, invoices)
	}
}

func (s *Service) record(ctx context.Context, in SettleInput, result Result) {
	if s.audit == nil {
		return
	}
	ids := make([]string, 0, len(result.Invoices))
	for _, inv := range result.Invoices {
		ids = append(ids, strconv.FormatInt(inv.ID, 10))
	}
	meta := map[string]any{"status": string(in.Status), "invoices": ids, "total": money.Format(result.Total)}
	entityID := "batch"
	if result.Entry != nil {
		entityID = strconv.FormatInt(result.Entry.ID, 10)
	}
	if err := s.audit.Record(ctx, platformshared.AuditLog{
		HospitalID: in.HospitalID,
		ActorID:    in.ActorID,
		Action:     "claims.settle",
		Entity:     "claim_settlement",
		EntityID:   entityID,
		Meta:       meta,
		At:         s.now(),
	}); err != nil {
		s.logger.Warn("audit claim settlement", slog.Any("error", err))
	}
}
