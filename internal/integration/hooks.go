package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/cashier"
	"github.com/saraya-erp/saraya-erp/internal/claims"
	"github.com/saraya-erp/saraya-erp/internal/events"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

// Ledger exposes direct posting for events with no document of their own.
type Ledger interface {
	PostEntry(ctx context.Context, input accounting.PostingInput) (accounting.PostingResult, error)
}

// Billing posts invoices and bed accruals.
type Billing interface {
	Issue(ctx context.Context, in billing.IssueInput) (accounting.PostingResult, error)
	AccrueBedCharge(ctx context.Context, charge billing.BedCharge) (accounting.PostingResult, error)
}

// Claims settles insurer claims.
type Claims interface {
	SettleClaims(ctx context.Context, in claims.SettleInput) (claims.Result, error)
}

// Cashier records patient payments.
type Cashier interface {
	RecordPayment(ctx context.Context, p cashier.Payment) (cashier.PaymentResult, error)
}

// Hooks turns operational events into ledger postings. Each handler runs its
// own transaction through the owning service.
type Hooks struct {
	ledger    Ledger
	billing   Billing
	claims    Claims
	cashier   Cashier
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, b Billing, c Claims, cash Cashier, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, billing: b, claims: c, cashier: cash, validator: validator.New(), logger: logger, now: time.Now}
}

// WithNow overrides the clock used for events without a timestamp.
func (h *Hooks) WithNow(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// Register subscribes every handler on bus.
func (h *Hooks) Register(bus *events.Bus) {
	bus.Subscribe(events.TypeInvoiceIssued, handle(h, h.HandleInvoiceIssued))
	bus.Subscribe(events.TypeDispenseCompleted, handle(h, h.HandleDispenseCompleted))
	bus.Subscribe(events.TypeClaimsSettlementRequested, handle(h, h.HandleClaimsSettlementRequested))
	bus.Subscribe(events.TypePaymentReceived, handle(h, h.HandlePaymentReceived))
	bus.Subscribe(events.TypeBedChargeAccrued, handle(h, h.HandleBedChargeAccrued))
}

// handle decodes and validates the payload, then classifies the handler error.
func handle[T any](h *Hooks, fn func(context.Context, T) error) events.Handler {
	return func(ctx context.Context, env events.Envelope) error {
		var payload T
		if err := env.Decode(&payload); err != nil {
			return err
		}
		if err := h.validator.Struct(payload); err != nil {
			return events.Permanent(fmt.Errorf("integration: %s payload: %w", env.Type, err))
		}
		return classify(fn(ctx, payload))
	}
}

// HandleInvoiceIssued posts the receivable/revenue entry of an issued invoice.
func (h *Hooks) HandleInvoiceIssued(ctx context.Context, evt events.InvoiceIssued) error {
	in, err := issueInput(evt, h.now())
	if err != nil {
		return err
	}
	result, err := h.billing.Issue(ctx, in)
	if err != nil {
		return err
	}
	h.logPosted("invoice issued", result, slog.Int64("invoice_id", evt.InvoiceID))
	return nil
}

// HandleDispenseCompleted moves the dispensed cost from inventory to COGS.
func (h *Hooks) HandleDispenseCompleted(ctx context.Context, evt events.DispenseCompleted) error {
	cost := money.Round(evt.TotalCost)
	if cost.IsZero() {
		h.logger.Info("dispense without cost ignored", slog.Int64("dispense_id", evt.DispenseID))
		return nil
	}
	if cost.IsNegative() {
		return invalid("dispense %d has negative cost", evt.DispenseID)
	}
	date := dateOr(evt.DispensedAt, h.now())
	result, err := h.ledger.PostEntry(ctx, accounting.PostingInput{
		HospitalID:   evt.HospitalID,
		Date:         date,
		Description:  fmt.Sprintf("Dispense %d cost of goods", evt.DispenseID),
		SourceModule: accounting.SourceInventory,
		SourceID:     accounting.SourceRef("DISPENSE", evt.DispenseID),
		Purpose:      accounting.PurposeCOGS,
		ActorID:      evt.ActorID,
		Lines: []accounting.PostingLine{
			accounting.Debit(mappings.KeyCOGS, cost, "Cost of goods dispensed"),
			accounting.Credit(mappings.KeyInventory, cost, "Inventory issued"),
		},
	})
	if err != nil {
		return err
	}
	h.logPosted("dispense posted", result, slog.Int64("dispense_id", evt.DispenseID))
	return nil
}

// HandleClaimsSettlementRequested applies a consolidated claim status change.
func (h *Hooks) HandleClaimsSettlementRequested(ctx context.Context, evt events.ClaimsSettlementRequested) error {
	status, err := billing.ParseClaimStatus(evt.TargetStatus)
	if err != nil {
		return err
	}
	result, err := h.claims.SettleClaims(ctx, claims.SettleInput{
		HospitalID: evt.HospitalID,
		InvoiceIDs: evt.InvoiceIDs,
		Status:     status,
		ActorID:    evt.ActorID,
		Date:       evt.SettledAt,
	})
	if err != nil {
		return err
	}
	h.logger.Info("claims settled",
		slog.Int64("hospital_id", evt.HospitalID),
		slog.String("status", string(status)),
		slog.Int("invoices", len(result.Invoices)),
		slog.String("total", money.Format(result.Total)),
		slog.Bool("replayed", result.Replayed))
	return nil
}

// HandlePaymentReceived records a desk payment and allocates it.
func (h *Hooks) HandlePaymentReceived(ctx context.Context, evt events.PaymentReceived) error {
	p, err := payment(evt)
	if err != nil {
		return err
	}
	result, err := h.cashier.RecordPayment(ctx, p)
	if err != nil {
		return err
	}
	h.logPosted("payment recorded", accounting.PostingResult{Entry: result.Entry, Replayed: result.Replayed},
		slog.Int64("payment_id", evt.PaymentID))
	return nil
}

// HandleBedChargeAccrued recognises one bed night announced by the ward.
func (h *Hooks) HandleBedChargeAccrued(ctx context.Context, evt events.BedChargeAccrued) error {
	result, err := h.billing.AccrueBedCharge(ctx, billing.BedCharge{
		EncounterID: evt.EncounterID,
		HospitalID:  evt.HospitalID,
		PatientID:   evt.PatientID,
		Day:         evt.Day,
		Amount:      evt.Amount,
		ActorID:     evt.ActorID,
	})
	if err != nil {
		return err
	}
	h.logPosted("bed charge accrued", result, slog.Int64("encounter_id", evt.EncounterID))
	return nil
}

func (h *Hooks) logPosted(msg string, result accounting.PostingResult, attrs ...any) {
	attrs = append(attrs,
		slog.Int64("hospital_id", result.Entry.HospitalID),
		slog.Int64("entry_id", result.Entry.ID),
		slog.Bool("replayed", result.Replayed))
	h.logger.Info(msg, attrs...)
}
