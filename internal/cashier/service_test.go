package cashier_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
	"github.com/saraya-erp/saraya-erp/internal/cashier"
	"github.com/saraya-erp/saraya-erp/internal/money"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
	"github.com/saraya-erp/saraya-erp/internal/testing/financefake"
)

const (
	hospital = int64(3)
	operator = int64(41)
)

var shiftStart = time.Date(2025, time.August, 11, 7, 0, 0, 0, time.UTC)

type fixture struct {
	world *financefake.World
	svc   *cashier.Service
	chart map[mappings.Key]int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	world := financefake.New()
	chart := world.SeedChart(hospital)
	world.OpenMonth(hospital, 2025, time.August)
	ledger := accounting.NewService(world, world, nil)
	svc := cashier.NewService(world.Cashier(), ledger, money.MustParse("0.005"), world, nil)
	svc.WithNow(func() time.Time { return shiftStart.Add(9 * time.Hour) })
	return fixture{world: world, svc: svc, chart: chart}
}

func (f fixture) seedPayment(id int64, method cashier.Method, amount string, at time.Duration) {
	f.world.SeedPayment(cashier.Payment{
		ID: id, HospitalID: hospital, PatientID: 1, Amount: money.MustParse(amount), Allocated: decimal.Zero,
		Method: method, ReceivedBy: operator, ReceivedAt: shiftStart.Add(at),
	})
}

func TestCloseShiftComputesDifference(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(1, cashier.MethodCash, "100.000", time.Hour)
	f.seedPayment(2, cashier.MethodCash, "50.000", 2*time.Hour)
	f.seedPayment(3, cashier.MethodCard, "75.000", 3*time.Hour)
	f.seedPayment(4, cashier.MethodCash, "999.000", 8*time.Hour) // at range end, excluded

	closing, err := f.svc.CloseShift(context.Background(), cashier.CloseInput{
		HospitalID: hospital, OperatorID: operator,
		RangeStart: shiftStart, RangeEnd: shiftStart.Add(8 * time.Hour),
		ActualCash: money.MustParse("130.000"),
	})
	require.NoError(t, err)
	require.Equal(t, "150.000", money.Format(closing.SystemCashTotal))
	require.Equal(t, "-20.000", money.Format(closing.Difference))
	require.Equal(t, operator, closing.ClosedBy)
	require.Equal(t, []string{"cashier.close_shift"}, f.world.AuditActions())
}

func TestCloseShiftWithoutPayments(t *testing.T) {
	f := newFixture(t)
	closing, err := f.svc.CloseShift(context.Background(), cashier.CloseInput{
		HospitalID: hospital, OperatorID: operator,
		RangeStart: shiftStart, RangeEnd: shiftStart.Add(time.Hour),
		ActualCash: decimal.Zero,
	})
	require.NoError(t, err)
	require.Equal(t, "0.000", money.Format(closing.SystemCashTotal))
	require.Equal(t, "0.000", money.Format(closing.Difference))
}

func TestCloseShiftValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := cashier.CloseInput{HospitalID: hospital, OperatorID: operator, RangeStart: shiftStart, RangeEnd: shiftStart.Add(time.Hour)}

	in := base
	in.RangeEnd = in.RangeStart
	_, err := f.svc.CloseShift(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidRange)

	in = base
	in.ActualCash = money.MustParse("-0.001")
	_, err = f.svc.CloseShift(ctx, in)
	require.ErrorIs(t, err, shared.ErrNonNegativeCashRequired)
	require.Empty(t, f.world.Closings())
}

func TestCloseShiftRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := cashier.CloseInput{HospitalID: hospital, OperatorID: operator, RangeStart: shiftStart, RangeEnd: shiftStart.Add(8 * time.Hour)}
	_, err := f.svc.CloseShift(ctx, first)
	require.NoError(t, err)

	overlapping := first
	overlapping.RangeStart = shiftStart.Add(7 * time.Hour)
	overlapping.RangeEnd = shiftStart.Add(12 * time.Hour)
	_, err = f.svc.CloseShift(ctx, overlapping)
	require.ErrorIs(t, err, shared.ErrShiftOverlap)

	adjacent := first
	adjacent.RangeStart = first.RangeEnd
	adjacent.RangeEnd = first.RangeEnd.Add(8 * time.Hour)
	_, err = f.svc.CloseShift(ctx, adjacent)
	require.NoError(t, err)

	other := first
	other.OperatorID = operator + 1
	_, err = f.svc.CloseShift(ctx, other)
	require.NoError(t, err)
	require.Len(t, f.world.Closings(), 3)
}

func TestShiftReportMatchesClosing(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(1, cashier.MethodCash, "12.500", time.Hour)
	f.seedPayment(2, cashier.MethodTransfer, "40.000", time.Hour)

	report, err := f.svc.ShiftReport(context.Background(), hospital, operator, shiftStart, shiftStart.Add(4*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "12.500", money.Format(report.SystemCashTotal))
	require.Equal(t, "52.500", money.Format(report.GrandTotal))
	require.Equal(t, 1, report.CashCount)
	require.Len(t, report.ByMethod, 2)
}

func issueInvoice(t *testing.T, f fixture, id int64, patientShare string) {
	t.Helper()
	share := money.MustParse(patientShare)
	f.world.SeedInvoice(billing.Invoice{
		ID: id, HospitalID: hospital, PatientID: 1, IssuedAt: shiftStart,
		TotalAmount: share, DiscountAmount: decimal.Zero, PatientShare: share, InsuranceShare: decimal.Zero,
		PaidAmount: decimal.Zero, Status: billing.InvoiceIssued, ClaimStatus: billing.ClaimNone,
	})
}

func TestRecordPaymentAllocatesAndPosts(t *testing.T) {
	f := newFixture(t)
	issueInvoice(t, f, 70, "20.000")
	invoiceID := int64(70)
	ctx := context.Background()

	res, err := f.svc.RecordPayment(ctx, cashier.Payment{
		ID: 900, HospitalID: hospital, PatientID: 1, InvoiceID: &invoiceID,
		Amount: money.MustParse("15.000"), Method: cashier.MethodCash, ReceivedBy: operator, ReceivedAt: shiftStart.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "15.000", money.Format(res.Payment.Allocated))
	require.Equal(t, billing.InvoicePartiallyPaid, res.Invoice.Status)
	require.Equal(t, "15.000", money.Format(f.world.Balance(f.chart[mappings.KeyCashOnHand])))
	require.Equal(t, "-15.000", money.Format(f.world.Balance(f.chart[mappings.KeyPatientReceivable])))

	res, err = f.svc.RecordPayment(ctx, cashier.Payment{
		ID: 901, HospitalID: hospital, PatientID: 1, InvoiceID: &invoiceID,
		Amount: money.MustParse("10.000"), Method: cashier.MethodCard, ReceivedBy: operator, ReceivedAt: shiftStart.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "5.000", money.Format(res.Payment.Allocated))
	require.Equal(t, "5.000", money.Format(res.Payment.Unallocated()))
	inv, _ := f.world.Invoice(70)
	require.Equal(t, billing.InvoicePaid, inv.Status)
	require.Equal(t, "10.000", money.Format(f.world.Balance(f.chart[mappings.KeyBank])))
}

func TestRecordPaymentReplay(t *testing.T) {
	f := newFixture(t)
	p := cashier.Payment{
		ID: 42, HospitalID: hospital, PatientID: 1,
		Amount: money.MustParse("30"), Method: cashier.MethodTransfer, ReceivedBy: operator, ReceivedAt: shiftStart,
	}
	first, err := f.svc.RecordPayment(context.Background(), p)
	require.NoError(t, err)
	second, err := f.svc.RecordPayment(context.Background(), p)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Entry.ID, second.Entry.ID)
	require.Len(t, f.world.Payments(hospital), 1)
}

func TestRecordPaymentNormalizesMethod(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.RecordPayment(context.Background(), cashier.Payment{
		ID: 55, HospitalID: hospital, PatientID: 1,
		Amount: money.MustParse("12.500"), Method: cashier.Method(" cash "), ReceivedBy: operator, ReceivedAt: shiftStart,
	})
	require.NoError(t, err)
	require.Equal(t, cashier.MethodCash, res.Payment.Method)
	require.Equal(t, "12.500", money.Format(f.world.Balance(f.chart[mappings.KeyCashOnHand])))
	require.Equal(t, "0.000", money.Format(f.world.Balance(f.chart[mappings.KeyBank])))
	require.Equal(t, cashier.MethodCash, f.world.Payments(hospital)[0].Method)

	_, err = f.svc.RecordPayment(context.Background(), cashier.Payment{
		ID: 56, HospitalID: hospital, PatientID: 1,
		Amount: money.MustParse("1"), Method: cashier.Method("cheque"), ReceivedBy: operator, ReceivedAt: shiftStart,
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRecordPaymentRollsBackOnClosedPeriod(t *testing.T) {
	f := newFixture(t)
	p := cashier.Payment{
		ID: 43, HospitalID: hospital, PatientID: 1,
		Amount: money.MustParse("30"), Method: cashier.MethodCash, ReceivedBy: operator,
		ReceivedAt: time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC),
	}
	_, err := f.svc.RecordPayment(context.Background(), p)
	require.ErrorIs(t, err, shared.ErrPeriodNotOpen)
	require.Empty(t, f.world.Payments(hospital))
}

func TestHandlerCloseShiftAndReport(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(1, cashier.MethodCash, "10.000", time.Hour)
	r := chi.NewRouter()
	cashier.NewHandler(slog.New(slog.DiscardHandler), f.svc).MountRoutes(r)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(httpx.HeaderHospitalID, "3")
		req.Header.Set(httpx.HeaderActorID, "41")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, "/cashier/shifts/report?operator_id=41&from=2025-08-11T07:00:00Z&to=2025-08-11T15:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var report cashier.ShiftReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Equal(t, "10.000", money.Format(report.SystemCashTotal))

	rr = do(http.MethodPost, "/cashier/shifts/close",
		`{"operator_id":41,"range_start":"2025-08-11T07:00:00Z","range_end":"2025-08-11T15:00:00Z","actual_cash":"10.000"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(http.MethodPost, "/cashier/shifts/close",
		`{"operator_id":41,"range_start":"2025-08-11T08:00:00Z","range_end":"2025-08-11T09:00:00Z","actual_cash":"0"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "SHIFT_OVERLAP")
}
