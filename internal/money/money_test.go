package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := map[string]string{
		"1.0005":  "1.001",
		"1.0004":  "1",
		"-1.0005": "-1.001",
		"2.9995":  "3",
		"0":       "0",
	}
	for in, want := range cases {
		got := Round(decimal.RequireFromString(in))
		require.Truef(t, got.Equal(decimal.RequireFromString(want)), "round(%s) = %s, want %s", in, got, want)
	}
}

func TestParseRejectsExcessPrecision(t *testing.T) {
	_, err := Parse("10.0001")
	require.Error(t, err)

	d, err := Parse("10.125")
	require.NoError(t, err)
	require.Equal(t, "10.125", Format(d))
}

func TestWithinTolerance(t *testing.T) {
	tol := MustParse("0.005")
	require.True(t, WithinTolerance(MustParse("19.996"), MustParse("20"), tol))
	require.False(t, WithinTolerance(MustParse("19.990"), MustParse("20"), tol))
}

func TestSumAndMin(t *testing.T) {
	total := Sum(MustParse("1.5"), MustParse("2.25"), MustParse("-0.75"))
	require.Equal(t, "3.000", Format(total))
	require.Equal(t, "1.5", Min(MustParse("1.5"), MustParse("2")).String())
}
