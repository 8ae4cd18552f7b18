package periods

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

func TestFindOpenPeriodNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FOR SHARE OF p").
		WithArgs(int64(1), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = NewStore(mock).FindOpenPeriod(context.Background(), 1, time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrPeriodNotOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestYearOverlaps(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), start, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	overlap, err := NewStore(mock).YearOverlaps(context.Background(), 1, start, end)
	require.NoError(t, err)
	require.True(t, overlap)
}
