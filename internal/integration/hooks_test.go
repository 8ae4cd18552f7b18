package integration_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/cashier"
	"github.com/saraya-erp/saraya-erp/internal/claims"
	"github.com/saraya-erp/saraya-erp/internal/events"
	"github.com/saraya-erp/saraya-erp/internal/integration"
	"github.com/saraya-erp/saraya-erp/internal/money"
	"github.com/saraya-erp/saraya-erp/internal/testing/financefake"
)

const hospital = int64(5)

var (
	quiet = slog.New(slog.DiscardHandler)
	march = time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	world *financefake.World
	chart map[mappings.Key]int64
	bus   *events.Bus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	world := financefake.New()
	chart := world.SeedChart(hospital)
	world.OpenMonth(hospital, 2026, time.March)
	tolerance := money.MustParse("0.005")
	ledger := accounting.NewService(world, world, quiet)
	hooks := integration.NewHooks(
		ledger,
		billing.NewService(world.Billing(), ledger, tolerance, quiet),
		claims.NewService(world.Billing(), ledger, tolerance, world, quiet),
		cashier.NewService(world.Cashier(), ledger, tolerance, world, quiet),
		quiet,
	)
	hooks.WithNow(func() time.Time { return march })
	bus := events.NewBus(nil, quiet)
	hooks.Register(bus)
	return fixture{world: world, chart: chart, bus: bus}
}

func (f fixture) publish(t *testing.T, typ events.Type, payload any) error {
	t.Helper()
	env, err := events.New(typ, hospital, payload)
	require.NoError(t, err)
	return f.bus.Dispatch(context.Background(), env)
}

func (f fixture) balance(key mappings.Key) string {
	return money.Format(f.world.Balance(f.chart[key]))
}

func insured() events.InvoiceIssued {
	insurer := int64(31)
	return events.InvoiceIssued{
		InvoiceID:           700,
		HospitalID:          hospital,
		PatientID:           12,
		ActorID:             3,
		TotalAmount:         money.MustParse("100"),
		PatientShare:        money.MustParse("20"),
		InsuranceShare:      money.MustParse("80"),
		InsuranceProviderID: &insurer,
	}
}

func TestInvoiceToPaymentLifecycle(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.publish(t, events.TypeInvoiceIssued, insured()))
	require.NoError(t, f.publish(t, events.TypeInvoiceIssued, insured()))
	require.Len(t, f.world.Entries(hospital), 1)
	require.Equal(t, "-100.000", f.balance(mappings.KeyRevenueServices))

	require.NoError(t, f.publish(t, events.TypeClaimsSettlementRequested, events.ClaimsSettlementRequested{
		HospitalID:   hospital,
		InvoiceIDs:   []int64{700},
		TargetStatus: "PAID",
		ActorID:      3,
		SettledAt:    &march,
	}))
	require.Equal(t, "80.000", f.balance(mappings.KeyBank))
	require.Equal(t, "0.000", f.balance(mappings.KeyInsuranceReceivable))

	invoiceID := int64(700)
	require.NoError(t, f.publish(t, events.TypePaymentReceived, events.PaymentReceived{
		PaymentID:  41,
		HospitalID: hospital,
		PatientID:  12,
		InvoiceID:  &invoiceID,
		Amount:     money.MustParse("20"),
		Method:     "CASH",
		ReceivedBy: 9,
		ReceivedAt: march.Add(2 * time.Hour),
	}))
	require.Equal(t, "0.000", f.balance(mappings.KeyPatientReceivable))
	require.Equal(t, "20.000", f.balance(mappings.KeyCashOnHand))

	inv, ok := f.world.Invoice(700)
	require.True(t, ok)
	require.Equal(t, billing.InvoicePaid, inv.Status)
	require.Equal(t, billing.ClaimPaid, inv.ClaimStatus)
}

func TestDispensePostsCostOfGoodsOnce(t *testing.T) {
	f := newFixture(t)
	evt := events.DispenseCompleted{DispenseID: 88, HospitalID: hospital, ActorID: 4, TotalCost: money.MustParse("12.5")}

	require.NoError(t, f.publish(t, events.TypeDispenseCompleted, evt))
	require.NoError(t, f.publish(t, events.TypeDispenseCompleted, evt))

	entries := f.world.Entries(hospital)
	require.Len(t, entries, 1)
	require.Equal(t, accounting.SourceInventory, entries[0].SourceModule)
	require.Equal(t, accounting.PurposeCOGS, entries[0].Purpose)
	require.Equal(t, "12.500", f.balance(mappings.KeyCOGS))
	require.Equal(t, "-12.500", f.balance(mappings.KeyInventory))
}

func TestZeroCostDispenseIsIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.publish(t, events.TypeDispenseCompleted, events.DispenseCompleted{
		DispenseID: 89, HospitalID: hospital, ActorID: 4, TotalCost: money.MustParse("0"),
	}))
	require.Empty(t, f.world.Entries(hospital))
}

func TestPermanentFailures(t *testing.T) {
	t.Run("period not open", func(t *testing.T) {
		f := newFixture(t)
		april := time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC)
		err := f.publish(t, events.TypeDispenseCompleted, events.DispenseCompleted{
			DispenseID: 1, HospitalID: hospital, ActorID: 4, TotalCost: money.MustParse("3"), DispensedAt: &april,
		})
		require.True(t, events.IsPermanent(err))
		require.ErrorIs(t, err, shared.ErrPeriodNotOpen)
		require.Empty(t, f.world.Entries(hospital))
	})

	t.Run("unmapped system account", func(t *testing.T) {
		f := newFixture(t)
		f.world.Unmap(hospital, mappings.KeyCOGS)
		err := f.publish(t, events.TypeDispenseCompleted, events.DispenseCompleted{
			DispenseID: 2, HospitalID: hospital, ActorID: 4, TotalCost: money.MustParse("3"),
		})
		require.True(t, events.IsPermanent(err))
		require.True(t, shared.IsConfigurationError(err))
	})

	t.Run("payload fails validation", func(t *testing.T) {
		f := newFixture(t)
		err := f.publish(t, events.TypePaymentReceived, events.PaymentReceived{PaymentID: 1, HospitalID: hospital, Method: "CHEQUE"})
		require.True(t, events.IsPermanent(err))
	})

	t.Run("no eligible invoices", func(t *testing.T) {
		f := newFixture(t)
		uninsured := insured()
		uninsured.PatientShare = money.MustParse("100")
		uninsured.InsuranceShare = money.MustParse("0")
		uninsured.InsuranceProviderID = nil
		require.NoError(t, f.publish(t, events.TypeInvoiceIssued, uninsured))
		err := f.publish(t, events.TypeClaimsSettlementRequested, events.ClaimsSettlementRequested{
			HospitalID: hospital, InvoiceIDs: []int64{700}, TargetStatus: "PAID", ActorID: 3, SettledAt: &march,
		})
		require.True(t, events.IsPermanent(err))
		require.ErrorIs(t, err, shared.ErrNoEligibleInvoices)
	})

	t.Run("insurance share without provider", func(t *testing.T) {
		f := newFixture(t)
		evt := insured()
		evt.InsuranceProviderID = nil
		err := f.publish(t, events.TypeInvoiceIssued, evt)
		require.True(t, events.IsPermanent(err))
	})
}

func TestBedChargeEventReplays(t *testing.T) {
	f := newFixture(t)
	evt := events.BedChargeAccrued{
		EncounterID: 300, HospitalID: hospital, PatientID: 12,
		Day: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), Amount: money.MustParse("450.250"), ActorID: 1,
	}
	require.NoError(t, f.publish(t, events.TypeBedChargeAccrued, evt))
	require.NoError(t, f.publish(t, events.TypeBedChargeAccrued, evt))
	require.Len(t, f.world.Entries(hospital), 1)
	require.Equal(t, "450.250", f.balance(mappings.KeyUnbilledRevenue))
	require.Equal(t, "-450.250", f.balance(mappings.KeyRevenueBed))
}
