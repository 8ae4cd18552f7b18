package accounting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

func validInput() PostingInput {
	return PostingInput{
		HospitalID:   1,
		Date:         time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		SourceModule: SourceManual,
		Lines: []PostingLine{
			Debit(mappings.KeyBank, money.MustParse("10"), ""),
			Credit(mappings.KeyRevenueServices, money.MustParse("10"), ""),
		},
	}
}

func TestPostingInputValidate(t *testing.T) {
	require.NoError(t, validInput().Validate())

	cases := map[string]struct {
		mutate func(*PostingInput)
		want   error
	}{
		"one line":    {func(in *PostingInput) { in.Lines = in.Lines[:1] }, shared.ErrTooFewLines},
		"unbalanced":  {func(in *PostingInput) { in.Lines[1].Credit = money.MustParse("9") }, shared.ErrUnbalancedEntry},
		"both sides":  {func(in *PostingInput) { in.Lines[0].Credit = money.MustParse("1") }, shared.ErrInvalidLine},
		"zero line":   {func(in *PostingInput) { in.Lines[0].Debit = decimal.Zero }, shared.ErrInvalidLine},
		"negative":    {func(in *PostingInput) { in.Lines[0].Debit = money.MustParse("-10") }, shared.ErrInvalidLine},
		"fine scale":  {func(in *PostingInput) { in.Lines[0].Debit = decimal.New(100005, -4) }, shared.ErrInvalidLine},
		"key and id":  {func(in *PostingInput) { in.Lines[0].AccountID = 5 }, shared.ErrInvalidLine},
		"unknown key": {func(in *PostingInput) { in.Lines[0].AccountKey = "PETTY" }, shared.ErrInvalidLine},
		"no module":   {func(in *PostingInput) { in.SourceModule = "" }, shared.ErrInvalidInput},
		"no purpose":  {func(in *PostingInput) { in.SourceID = SourceRef("INVOICE", 1) }, shared.ErrInvalidInput},
		"no hospital": {func(in *PostingInput) { in.HospitalID = 0 }, shared.ErrInvalidInput},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			require.ErrorIs(t, in.Validate(), tc.want)
		})
	}
}

func TestSourceRefIsDeterministic(t *testing.T) {
	require.Equal(t, SourceRef("INVOICE", 42), SourceRef("INVOICE", 42))
	require.NotEqual(t, SourceRef("INVOICE", 42), SourceRef("PAYMENT", 42))
	require.NotEqual(t, uuid.Nil, SourceRef("INVOICE", 42))

	require.Equal(t, SourceRefSet("CLAIM_BATCH", []int64{3, 1, 2, 3}), SourceRefSet("CLAIM_BATCH", []int64{1, 2, 3}))
	require.NotEqual(t, SourceRefSet("CLAIM_BATCH", []int64{1, 2}), SourceRefSet("CLAIM_BATCH", []int64{1, 2, 3}))
}

func TestPurposes(t *testing.T) {
	require.Equal(t, "BED_CHARGE:2025-03-09", BedChargePurpose(time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)))
	require.Equal(t, "REVERSAL:17", ReversalPurpose(17))
}

func TestNonZeroDropsEmptyLines(t *testing.T) {
	lines := NonZero(
		Debit(mappings.KeyBank, money.MustParse("5"), ""),
		Debit(mappings.KeyDiscountAllowed, money.MustParse("0"), ""),
		Credit(mappings.KeyRevenueLab, money.MustParse("5"), ""),
	)
	require.Len(t, lines, 2)
}

func TestParseSourceModule(t *testing.T) {
	m, err := ParseSourceModule("billing")
	require.NoError(t, err)
	require.Equal(t, SourceBilling, m)
	_, err = ParseSourceModule("payroll-x")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
