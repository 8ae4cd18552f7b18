package claims_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/claims"
	"github.com/saraya-erp/saraya-erp/internal/money"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
	"github.com/saraya-erp/saraya-erp/internal/testing/financefake"
)

const hospital = int64(4)

var settledOn = time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)

type fixture struct {
	world   *financefake.World
	billing *billing.Service
	claims  *claims.Service
	chart   map[mappings.Key]int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	world := financefake.New()
	chart := world.SeedChart(hospital)
	world.OpenMonth(hospital, 2025, time.June)
	ledger := accounting.NewService(world, world, nil)
	tol := money.MustParse("0.005")
	svc := claims.NewService(world.Billing(), ledger, tol, world, nil)
	svc.WithNow(func() time.Time { return settledOn })
	return fixture{
		world:   world,
		billing: billing.NewService(world.Billing(), ledger, tol, nil),
		claims:  svc,
		chart:   chart,
	}
}

// issue books an invoice of total with the insurer covering pct percent.
func (f fixture) issue(t *testing.T, id int64, total string, pct int64) {
	t.Helper()
	amount := money.MustParse(total)
	insurer := money.Round(amount.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)))
	_, err := f.billing.Issue(context.Background(), billing.IssueInput{
		InvoiceID:      id,
		HospitalID:     hospital,
		PatientID:      300 + id,
		IssuedAt:       time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC),
		TotalAmount:    amount,
		DiscountAmount: decimal.Zero,
		PatientShare:   amount.Sub(insurer),
		InsuranceShare: insurer,
	})
	require.NoError(t, err)
}

func (f fixture) balance(key mappings.Key) string {
	return money.Format(f.world.Balance(f.chart[key]))
}

func TestSettlePaidPostsOneBatchEntry(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "100.000", 80)
	f.issue(t, 2, "250.000", 50)

	res, err := f.claims.SettleClaims(context.Background(), claims.SettleInput{
		HospitalID: hospital, InvoiceIDs: []int64{2, 1}, Status: billing.ClaimPaid, ActorID: 9,
	})
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Equal(t, "205.000", money.Format(res.Total))
	require.NotNil(t, res.Entry)
	require.Equal(t, accounting.PurposeClaimSettlement, res.Entry.Purpose)

	require.Equal(t, "205.000", f.balance(mappings.KeyBank))
	require.Equal(t, "0.000", f.balance(mappings.KeyInsuranceReceivable))
	require.Equal(t, "145.000", f.balance(mappings.KeyPatientReceivable))

	inv, _ := f.world.Invoice(1)
	require.Equal(t, billing.ClaimPaid, inv.ClaimStatus)
	require.Equal(t, billing.InvoicePartiallyPaid, inv.Status)
	require.Contains(t, f.world.AuditActions(), "claims.settle")
}

func TestSettlePaidReplayReturnsOriginalEntry(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "100.000", 80)
	ctx := context.Background()
	in := claims.SettleInput{HospitalID: hospital, InvoiceIDs: []int64{1}, Status: billing.ClaimPaid, ActorID: 9}

	first, err := f.claims.SettleClaims(ctx, in)
	require.NoError(t, err)
	second, err := f.claims.SettleClaims(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Entry.ID, second.Entry.ID)
	require.Equal(t, "80.000", f.balance(mappings.KeyBank))
}

func TestSettleSkipsUninsuredAndFailsWhenNothingEligible(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "100.000", 0)
	f.issue(t, 2, "100.000", 80)
	ctx := context.Background()

	_, err := f.claims.SettleClaims(ctx, claims.SettleInput{HospitalID: hospital, InvoiceIDs: []int64{1, 77}, Status: billing.ClaimSubmitted, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrNoEligibleInvoices)

	res, err := f.claims.SettleClaims(ctx, claims.SettleInput{HospitalID: hospital, InvoiceIDs: []int64{1, 2}, Status: billing.ClaimSubmitted, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, res.Skipped)
	require.Nil(t, res.Entry)
	require.Len(t, res.Invoices, 1)
	require.Equal(t, billing.ClaimSubmitted, res.Invoices[0].ClaimStatus)
}

func TestSettleInvalidTransitionAbortsBatch(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "100.000", 80)
	f.issue(t, 2, "100.000", 80)
	ctx := context.Background()

	_, err := f.claims.SettleClaims(ctx, claims.SettleInput{HospitalID: hospital, InvoiceIDs: []int64{1}, Status: billing.ClaimRejected, ActorID: 9})
	require.NoError(t, err)

	_, err = f.claims.SettleClaims(ctx, claims.SettleInput{HospitalID: hospital, InvoiceIDs: []int64{1, 2}, Status: billing.ClaimPaid, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrInvalidClaimTransition)

	inv, _ := f.world.Invoice(2)
	require.Equal(t, billing.ClaimPending, inv.ClaimStatus)
	require.Equal(t, "0.000", f.balance(mappings.KeyBank))
}

func TestSettleOutsideOpenPeriodRollsBack(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "100.000", 80)
	july := time.Date(2025, time.July, 2, 0, 0, 0, 0, time.UTC)

	_, err := f.claims.SettleClaims(context.Background(), claims.SettleInput{
		HospitalID: hospital, InvoiceIDs: []int64{1}, Status: billing.ClaimPaid, ActorID: 9, Date: &july,
	})
	require.ErrorIs(t, err, shared.ErrPeriodNotOpen)
	inv, _ := f.world.Invoice(1)
	require.Equal(t, billing.ClaimPending, inv.ClaimStatus)
}

func TestSettleFullyPaidPatientShareMarksInvoicePaid(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "50.000", 100)

	res, err := f.claims.SettleClaims(context.Background(), claims.SettleInput{HospitalID: hospital, InvoiceIDs: []int64{1}, Status: billing.ClaimPaid, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePaid, res.Invoices[0].Status)
}

func TestSettleHandler(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "100.000", 80)
	r := chi.NewRouter()
	claims.NewHandler(slog.New(slog.DiscardHandler), f.claims).MountRoutes(r)

	body := `{"invoice_ids":[1],"status":"PAID"}`
	req := httptest.NewRequest(http.MethodPost, "/claims/settle", strings.NewReader(body))
	req.Header.Set(httpx.HeaderHospitalID, strconv.FormatInt(hospital, 10))
	req.Header.Set(httpx.HeaderActorID, "9")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out claims.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, billing.ClaimPaid, out.Status)

	req = httptest.NewRequest(http.MethodPost, "/claims/settle", strings.NewReader(`{"invoice_ids":[1],"status":"LOST"}`))
	req.Header.Set(httpx.HeaderHospitalID, strconv.FormatInt(hospital, 10))
	req.Header.Set(httpx.HeaderActorID, "9")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
