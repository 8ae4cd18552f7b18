package shared

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestAuditLoggerDefaultsTimestampAndMeta(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(int64(1), int64(7), "period.close", "financial_period", "12", []byte(`{}`), nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewAuditLogger(mock).Record(context.Background(), AuditLog{
		HospitalID: 1, ActorID: 7, Action: "period.close", Entity: "financial_period", EntityID: "12",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLoggerKeepsExplicitTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 3, 31, 17, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(int64(2), int64(3), "shift.close", "cashier_shift", "4", []byte(`{"difference":"-20.000"}`), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewAuditLogger(mock).Record(context.Background(), AuditLog{
		HospitalID: 2, ActorID: 3, Action: "shift.close", Entity: "cashier_shift", EntityID: "4",
		Meta: map[string]any{"difference": "-20.000"}, At: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLoggerRequiresIdentity(t *testing.T) {
	err := NewAuditLogger(nil).Record(context.Background(), AuditLog{Action: "x"})
	require.ErrorContains(t, err, "requires hospital_id")

	err = NewAuditLogger(nil).Record(context.Background(), AuditLog{HospitalID: 1, Action: "x"})
	require.ErrorContains(t, err, "requires action")

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}
