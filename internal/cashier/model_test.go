package cashier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

func TestOverlapsIsHalfOpen(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2025, 1, 1, h, 0, 0, 0, time.UTC) }
	require.True(t, Overlaps(at(8), at(16), at(15), at(20)))
	require.False(t, Overlaps(at(8), at(16), at(16), at(20)))
	require.False(t, Overlaps(at(8), at(16), at(0), at(8)))
	require.True(t, Overlaps(at(8), at(16), at(9), at(10)))
}

func TestMethodDebitKey(t *testing.T) {
	require.Equal(t, mappings.KeyCashOnHand, MethodCash.DebitKey())
	require.Equal(t, mappings.KeyBank, MethodCard.DebitKey())
	m, err := ParseMethod(" transfer ")
	require.NoError(t, err)
	require.Equal(t, mappings.KeyBank, m.DebitKey())
	_, err = ParseMethod("cheque")
	require.Error(t, err)
}

func TestBuildReportSeparatesCash(t *testing.T) {
	report := BuildReport(1, 2, time.Time{}, time.Time{}, []MethodTotal{
		{Method: MethodCard, Total: money.MustParse("5"), Count: 1},
		{Method: MethodCash, Total: money.MustParse("7.250"), Count: 3},
	})
	require.Equal(t, "7.250", money.Format(report.SystemCashTotal))
	require.Equal(t, "12.250", money.Format(report.GrandTotal))
	require.Equal(t, 3, report.CashCount)
}
