package mappings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

func TestStoreResolveActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM system_account_mappings").
		WithArgs(int64(4), KeyBank).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "is_active"}).AddRow(int64(1100), true))

	id, err := NewStore(mock).Resolve(context.Background(), 4, KeyBank)
	require.NoError(t, err)
	require.Equal(t, int64(1100), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreResolveMissingIsConfigurationError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM system_account_mappings").
		WithArgs(int64(4), KeyCOGS).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "is_active"}))

	_, err = NewStore(mock).Resolve(context.Background(), 4, KeyCOGS)
	var cfgErr *shared.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "COGS", cfgErr.Key)
	require.Equal(t, "not mapped", cfgErr.Reason)
}

func TestStoreResolveInactiveAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM system_account_mappings").
		WithArgs(int64(4), KeyRevenueLab).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "is_active"}).AddRow(int64(4300), false))

	_, err = NewStore(mock).Resolve(context.Background(), 4, KeyRevenueLab)
	var cfgErr *shared.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, int64(4300), cfgErr.AccountID)
	require.Equal(t, "inactive", cfgErr.Reason)
}

func TestStoreUpsertForeignAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO system_account_mappings").
		WithArgs(int64(4), KeyBank, int64(99)).
		WillReturnRows(pgxmock.NewRows([]string{"hospital_id", "key", "account_id", "updated_at"}))

	_, err = NewStore(mock).Upsert(context.Background(), 4, KeyBank, 99)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

type memoryRepo struct {
	mapped map[Key]int64
}

func (m *memoryRepo) Resolve(_ context.Context, hospitalID int64, key Key) (int64, error) {
	id, ok := m.mapped[key]
	if !ok {
		return 0, Missing(hospitalID, key)
	}
	return id, nil
}

func (m *memoryRepo) List(context.Context, int64) ([]Mapping, error) { return nil, nil }

func (m *memoryRepo) Upsert(_ context.Context, hospitalID int64, key Key, accountID int64) (Mapping, error) {
	m.mapped[key] = accountID
	return Mapping{HospitalID: hospitalID, Key: key, AccountID: accountID, UpdatedAt: time.Now()}, nil
}

func TestRegistryVerifyReportsEveryMissingKey(t *testing.T) {
	repo := &memoryRepo{mapped: map[Key]int64{}}
	reg := NewRegistry(repo, nil)
	for _, key := range AllKeys() {
		if key == KeyCOGS || key == KeyRevenueBed {
			continue
		}
		_, err := reg.Assign(context.Background(), 1, key, 10, 7)
		require.NoError(t, err)
	}

	err := reg.Verify(context.Background(), 1)
	require.Error(t, err)
	require.True(t, shared.IsConfigurationError(err))
	require.Contains(t, err.Error(), "COGS")
	require.Contains(t, err.Error(), "REVENUE_BED")

	require.NoError(t, reg.Verify(context.Background(), 1, KeyBank, KeyCashOnHand))
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey(" revenue_pharmacy ")
	require.NoError(t, err)
	require.Equal(t, KeyRevenuePharmacy, k)

	_, err = ParseKey("PETTY_CASH")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
