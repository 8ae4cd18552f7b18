package claims_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting/reports"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/claims"
	"github.com/saraya-erp/saraya-erp/internal/money"
	"github.com/saraya-erp/saraya-erp/internal/platform/cache"
	"github.com/saraya-erp/saraya-erp/internal/testing/financefake"
)

// invoiceAging serves insurer receivables straight from the fake invoices.
type invoiceAging struct {
	world *financefake.World
	ids   []int64
}

func (invoiceAging) LedgerAccount(context.Context, int64, int64) (reports.LedgerAccount, error) {
	return reports.LedgerAccount{}, shared.ErrAccountNotFound
}

func (invoiceAging) OpeningSums(context.Context, int64, time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func (invoiceAging) Postings(context.Context, int64, time.Time, time.Time) ([]reports.Posting, error) {
	return nil, nil
}

func (invoiceAging) AccountBalances(context.Context, int64, time.Time, time.Time) ([]reports.AccountBalance, error) {
	return nil, nil
}

func (r invoiceAging) ReceivableDocuments(_ context.Context, hospitalID int64, _ time.Time) ([]reports.AgingDocument, error) {
	var out []reports.AgingDocument
	for _, id := range r.ids {
		inv, ok := r.world.Invoice(id)
		if !ok || inv.HospitalID != hospitalID || !inv.InsuranceShare.IsPositive() {
			continue
		}
		if inv.ClaimStatus == billing.ClaimPaid || inv.ClaimStatus == billing.ClaimRejected {
			continue
		}
		out = append(out, reports.AgingDocument{
			CounterpartyType: reports.CounterpartyInsurer,
			CounterpartyID:   1,
			DocumentID:       inv.ID,
			DocumentDate:     inv.IssuedAt,
			Outstanding:      inv.InsuranceShare,
		})
	}
	return out, nil
}

func (invoiceAging) PayableDocuments(context.Context, int64, time.Time) ([]reports.AgingDocument, error) {
	return nil, nil
}

func (invoiceAging) UnallocatedCredits(context.Context, int64, time.Time) ([]reports.Credit, error) {
	return nil, nil
}

func insurerAging(t *testing.T, svc *reports.Service) string {
	t.Helper()
	report, err := svc.GetAging(context.Background(), reports.AgingFilter{
		HospitalID: hospital, Kind: reports.AgingReceivable, AsOf: settledOn,
	})
	require.NoError(t, err)
	return money.Format(report.GrandTotal.Total)
}

func TestClaimStatusChangesRefreshCachedAging(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1, "100.000", 80)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	reportService := reports.NewService(invoiceAging{world: f.world, ids: []int64{1}},
		cache.NewVersioned(client, 10*time.Minute), slog.New(slog.DiscardHandler))
	f.claims.WithReports(reportService)

	require.Equal(t, "80.000", insurerAging(t, reportService))

	ctx := context.Background()
	_, err := f.claims.SettleClaims(ctx, claimsInput(billing.ClaimRejected))
	require.NoError(t, err)
	inv, _ := f.world.Invoice(1)
	require.Equal(t, billing.ClaimRejected, inv.ClaimStatus)
	require.Equal(t, "0.000", insurerAging(t, reportService))

	_, err = f.claims.SettleClaims(ctx, claimsInput(billing.ClaimSubmitted))
	require.NoError(t, err)
	require.Equal(t, "80.000", insurerAging(t, reportService))
}

func claimsInput(status billing.ClaimStatus) claims.SettleInput {
	return claims.SettleInput{HospitalID: hospital, InvoiceIDs: []int64{1}, Status: status, ActorID: 9}
}
