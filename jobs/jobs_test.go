package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/billing"
	jobmetrics "github.com/saraya-erp/saraya-erp/internal/jobs"
	"github.com/saraya-erp/saraya-erp/internal/shared"
)

var quiet = slog.New(slog.DiscardHandler)

type stubAccruer struct {
	days    []time.Time
	summary billing.AccrualSummary
	err     error
}

func (s *stubAccruer) AccrueBedCharges(_ context.Context, day time.Time, _ int64) (billing.AccrualSummary, error) {
	s.days = append(s.days, day)
	s.summary.Day = day
	return s.summary, s.err
}

func newLocker(t *testing.T) (*shared.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewLocker(client), mr
}

func TestBedChargeJobDefaultsToYesterday(t *testing.T) {
	locker, mr := newLocker(t)
	accruer := &stubAccruer{summary: billing.AccrualSummary{Posted: 3, Replayed: 1}}
	job := NewBedChargeJob(accruer, locker, quiet, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2026, 3, 5, 0, 10, 0, 0, time.UTC) })

	task, err := NewBedChargeTask(BedChargePayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []time.Time{time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}, accruer.days)
	require.False(t, mr.Exists(shared.BedChargeLockKey(accruer.days[0])))
}

func TestBedChargeJobSkipsWhileLocked(t *testing.T) {
	locker, _ := newLocker(t)
	accruer := &stubAccruer{}
	job := NewBedChargeJob(accruer, locker, quiet, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	release, err := locker.Acquire(context.Background(), shared.BedChargeLockKey(day), time.Minute)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	task, err := NewBedChargeTask(BedChargePayload{Day: "2026-03-04"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, accruer.days)
}

func TestBedChargeJobRejectsBadPayload(t *testing.T) {
	job := NewBedChargeJob(&stubAccruer{}, nil, quiet, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskBedChargeAccrual, []byte(`{"day":"04/03/2026"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	_, err = NewBedChargeTask(BedChargePayload{Day: "yesterday"})
	require.Error(t, err)
}

func TestBedChargeJobSurfacesPartialFailure(t *testing.T) {
	accruer := &stubAccruer{summary: billing.AccrualSummary{Posted: 1, Failed: 1}, err: errors.New("encounter 4: period not open")}
	job := NewBedChargeJob(accruer, nil, quiet, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	summary, err := job.Run(context.Background(), time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), 0)
	require.Error(t, err)
	require.Equal(t, 1, summary.Failed)
}

func TestIntegrityStoreScan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM journal_entries e LEFT JOIN journal_lines").
		WithArgs(int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"hospital_id", "count", "unbalanced"}).
			AddRow(int64(1), 40, []int64{}).
			AddRow(int64(2), 12, []int64{7, 9}))

	results, err := NewIntegrityStore(mock).ScanEntries(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, []int64{7, 9}, results[1].Unbalanced)
	require.NoError(t, mock.ExpectationsWereMet())
}

type stubIntegrityRepo struct {
	results []IntegrityResult
}

func (s stubIntegrityRepo) ScanEntries(context.Context, int64) ([]IntegrityResult, error) {
	return s.results, nil
}

func TestGLIntegrityJobPublishesViolations(t *testing.T) {
	reg := prometheus.NewRegistry()
	locker, _ := newLocker(t)
	job := NewGLIntegrityJob(stubIntegrityRepo{results: []IntegrityResult{
		{HospitalID: 1, Entries: 40},
		{HospitalID: 2, Entries: 12, Unbalanced: []int64{7, 9}},
	}}, locker, quiet, jobmetrics.NewMetrics(reg))

	violations, err := job.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, violations)

	families, err := reg.Gather()
	require.NoError(t, err)
	gauges := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "saraya_ledger_unbalanced_entries" {
			continue
		}
		for _, m := range mf.GetMetric() {
			gauges[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
		}
	}
	require.Equal(t, map[string]float64{"1": 0, "2": 2}, gauges)

	payload, err := json.Marshal(GLIntegrityPayload{HospitalID: 2})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, payload)))
}
