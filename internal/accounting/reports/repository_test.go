package reports

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting/accounts"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

func TestStoreLedgerAccountNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM accounts").
		WithArgs(int64(1), int64(99)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "hospital_id", "code", "name", "type"}))

	_, err = NewStore(mock).LedgerAccount(context.Background(), 1, 99)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestStorePostingsOrdered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from, to := day(2026, 3, 1), day(2026, 3, 31)
	mock.ExpectQuery("ORDER BY e.entry_date, e.number, l.id").
		WithArgs(int64(10), from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "number", "line_id", "entry_date", "description", "debit", "credit"}).
			AddRow(int64(1), int64(7), int64(1), day(2026, 3, 2), "Invoice INV-1", money.MustParse("100"), money.MustParse("0")).
			AddRow(int64(2), int64(8), int64(4), day(2026, 3, 5), "Payment", money.MustParse("0"), money.MustParse("50")))

	postings, err := NewStore(mock).Postings(context.Background(), 10, from, to)
	require.NoError(t, err)
	require.Len(t, postings, 2)
	require.Equal(t, int64(8), postings[1].EntryNumber)
	require.Equal(t, "50.000", money.Format(postings[1].Credit))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreAccountBalances(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from, to := day(2026, 3, 1), day(2026, 3, 31)
	mock.ExpectQuery("FROM accounts a").
		WithArgs(int64(1), from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "code", "name", "type", "od", "oc", "d", "c"}).
			AddRow(int64(1), "1100", "Cash", accounts.AccountTypeAsset, money.MustParse("100"), money.MustParse("0"), money.MustParse("50"), money.MustParse("0")))

	rows, err := NewStore(mock).AccountBalances(context.Background(), 1, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "150.000", money.Format(rows[0].Closing()))
}

func TestStoreReceivableDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	asOf := day(2026, 3, 31)
	mock.ExpectQuery("claim_settled_on > \\$2").
		WithArgs(int64(1), asOf).
		WillReturnRows(pgxmock.NewRows([]string{"type", "counterparty", "id", "date", "outstanding"}).
			AddRow(CounterpartyInsurer, int64(7), int64(11), day(2026, 3, 1), money.MustParse("80")).
			AddRow(CounterpartyPatient, int64(3), int64(11), day(2026, 3, 1), money.MustParse("20")))

	docs, err := NewStore(mock).ReceivableDocuments(context.Background(), 1, asOf)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, CounterpartyPatient, docs[1].CounterpartyType)
	require.Equal(t, "20.000", money.Format(docs[1].Outstanding))
}

func TestStoreUnallocatedCredits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	asOf := day(2026, 3, 31)
	mock.ExpectQuery("amount - allocated_amount").
		WithArgs(int64(1), asOf).
		WillReturnRows(pgxmock.NewRows([]string{"type", "patient_id", "amount"}).
			AddRow(CounterpartyPatient, int64(3), money.MustParse("5")))

	credits, err := NewStore(mock).UnallocatedCredits(context.Background(), 1, asOf)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	require.Equal(t, int64(3), credits[0].CounterpartyID)
}
