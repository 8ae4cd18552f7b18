package reports

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/accounts"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
	"github.com/saraya-erp/saraya-erp/internal/platform/cache"
)

type countingRepo struct {
	balanceCalls atomic.Int32
	postingCalls atomic.Int32
	payables     atomic.Int32
	receivables  atomic.Int32
}

func (r *countingRepo) LedgerAccount(_ context.Context, hospitalID, accountID int64) (LedgerAccount, error) {
	if accountID != 10 {
		return LedgerAccount{}, shared.ErrAccountNotFound
	}
	return LedgerAccount{ID: 10, HospitalID: hospitalID, Code: "1100", Name: "Cash", Type: accounts.AccountTypeAsset}, nil
}

func (r *countingRepo) OpeningSums(context.Context, int64, time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return money.MustParse("10"), decimal.Zero, nil
}

func (r *countingRepo) Postings(context.Context, int64, time.Time, time.Time) ([]Posting, error) {
	r.postingCalls.Add(1)
	return []Posting{{EntryID: 1, Debit: money.MustParse("5"), Credit: decimal.Zero}}, nil
}

func (r *countingRepo) AccountBalances(context.Context, int64, time.Time, time.Time) ([]AccountBalance, error) {
	r.balanceCalls.Add(1)
	return []AccountBalance{{AccountID: 1, Code: "1100", Type: accounts.AccountTypeAsset,
		OpeningDebit: decimal.Zero, OpeningCredit: decimal.Zero, Debit: money.MustParse("5"), Credit: money.MustParse("5")}}, nil
}

func (r *countingRepo) ReceivableDocuments(context.Context, int64, time.Time) ([]AgingDocument, error) {
	r.receivables.Add(1)
	return []AgingDocument{{CounterpartyType: CounterpartyPatient, CounterpartyID: 3, DocumentDate: day(2026, 3, 1), Outstanding: money.MustParse("20")}}, nil
}

func (r *countingRepo) PayableDocuments(context.Context, int64, time.Time) ([]AgingDocument, error) {
	r.payables.Add(1)
	return []AgingDocument{{CounterpartyType: CounterpartySupplier, CounterpartyID: 9, DocumentDate: day(2025, 10, 1), Outstanding: money.MustParse("70")}}, nil
}

func (r *countingRepo) UnallocatedCredits(context.Context, int64, time.Time) ([]Credit, error) {
	return []Credit{{CounterpartyType: CounterpartyPatient, CounterpartyID: 4, Amount: money.MustParse("2")}}, nil
}

func newCachedService(t *testing.T) (*Service, *countingRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &countingRepo{}
	return NewService(repo, cache.NewVersioned(client, time.Minute), slog.New(slog.DiscardHandler)), repo
}

func TestTrialBalanceCachedUntilEntryPosted(t *testing.T) {
	ctx := context.Background()
	svc, repo := newCachedService(t)
	filter := TrialBalanceFilter{HospitalID: 1, From: day(2026, 3, 1), To: day(2026, 3, 31)}

	tb, err := svc.GetTrialBalance(ctx, filter)
	require.NoError(t, err)
	require.True(t, tb.Balanced)
	_, err = svc.GetTrialBalance(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int32(1), repo.balanceCalls.Load())

	svc.EntryPosted(ctx, accounting.JournalEntry{HospitalID: 2})
	_, err = svc.GetTrialBalance(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int32(1), repo.balanceCalls.Load())

	svc.EntryPosted(ctx, accounting.JournalEntry{HospitalID: 1})
	_, err = svc.GetTrialBalance(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int32(2), repo.balanceCalls.Load())
}

func TestLedgerThroughCache(t *testing.T) {
	ctx := context.Background()
	svc, repo := newCachedService(t)
	filter := LedgerFilter{HospitalID: 1, AccountID: 10, From: day(2026, 3, 1), To: day(2026, 3, 31)}

	ledger, err := svc.GetLedger(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, "15.000", money.Format(ledger.ClosingBalance))
	require.Len(t, ledger.Lines, 1)

	cached, err := svc.GetLedger(ctx, filter)
	require.NoError(t, err)
	require.True(t, cached.ClosingBalance.Equal(ledger.ClosingBalance))
	require.Equal(t, int32(1), repo.postingCalls.Load())

	_, err = svc.GetLedger(ctx, LedgerFilter{HospitalID: 1, AccountID: 11, From: filter.From, To: filter.To})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestRejectsInvertedWindow(t *testing.T) {
	svc := NewService(&countingRepo{}, nil, nil)
	_, err := svc.GetTrialBalance(context.Background(), TrialBalanceFilter{HospitalID: 1, From: day(2026, 3, 31), To: day(2026, 3, 1)})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestAgingKinds(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&countingRepo{}, nil, nil)

	receivable, err := svc.GetAging(ctx, AgingFilter{HospitalID: 1, AsOf: day(2026, 3, 31)})
	require.NoError(t, err)
	require.Equal(t, AgingReceivable, receivable.Kind)
	require.Equal(t, "20.000", money.Format(receivable.GrandTotal.Total))
	require.Equal(t, "2.000", money.Format(receivable.TotalUnallocated))

	payable, err := svc.GetAging(ctx, AgingFilter{HospitalID: 1, Kind: AgingPayable, AsOf: day(2026, 3, 31)})
	require.NoError(t, err)
	require.Equal(t, "70.000", money.Format(payable.GrandTotal.Over120))
	require.Empty(t, payable.Unallocated)
}

func TestReceivableAgingCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	svc, repo := newCachedService(t)
	filter := AgingFilter{HospitalID: 1, AsOf: day(2026, 3, 31)}

	for i := 0; i < 2; i++ {
		_, err := svc.GetAging(ctx, filter)
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), repo.receivables.Load())

	svc.Invalidate(ctx, 1)
	_, err := svc.GetAging(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int32(2), repo.receivables.Load())
}

func TestPayableAgingAlwaysLoadsFresh(t *testing.T) {
	ctx := context.Background()
	svc, repo := newCachedService(t)
	filter := AgingFilter{HospitalID: 1, Kind: AgingPayable, AsOf: day(2026, 3, 31)}

	for i := 0; i < 3; i++ {
		report, err := svc.GetAging(ctx, filter)
		require.NoError(t, err)
		require.Equal(t, "70.000", money.Format(report.GrandTotal.Total))
	}
	require.Equal(t, int32(3), repo.payables.Load())
}

func TestHandlerAgingRejectsUnknownKind(t *testing.T) {
	h := NewHandler(slog.New(slog.DiscardHandler), NewService(&countingRepo{}, nil, nil))
	r := chi.NewRouter()
	h.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/aging?kind=overdue", nil)
	req.Header.Set("X-Hospital-ID", "1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/aging?kind=PAYABLE&as_of=2026-03-31", nil)
	req.Header.Set("X-Hospital-ID", "1")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"kind":"PAYABLE"`)
}
