package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/saraya-erp/saraya-erp/internal/billing"
	jobmetrics "github.com/saraya-erp/saraya-erp/internal/jobs"
	"github.com/saraya-erp/saraya-erp/internal/shared"
)

const bedChargeLockTTL = 30 * time.Minute

// Accruer posts bed charges for every occupied bed on a day.
type Accruer interface {
	AccrueBedCharges(ctx context.Context, day time.Time, actorID int64) (billing.AccrualSummary, error)
}

// BedChargeJob runs the nightly accrual under a Redis lock so only one
// worker accrues a given day at a time. Re-running a day is safe: already
// accrued nights replay.
type BedChargeJob struct {
	Accruer Accruer
	Locker  *shared.Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBedChargeJob constructs the job handler.
func NewBedChargeJob(accruer Accruer, locker *shared.Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *BedChargeJob {
	return &BedChargeJob{
		Accruer: accruer,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (j *BedChargeJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

// Handle executes the accrual task.
func (j *BedChargeJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Accruer == nil {
		return errors.New("bed charge: dependencies not configured")
	}
	var payload BedChargePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("bed charge payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	day, err := j.resolveDay(payload.Day)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	_, err = j.Run(ctx, day, payload.ActorID)
	if errors.Is(err, shared.ErrLockHeld) {
		j.log().Info("accrual already running", slog.String("day", day.Format(time.DateOnly)))
		return nil
	}
	return err
}

// Run accrues day. It is exported for the CLI.
func (j *BedChargeJob) Run(ctx context.Context, day time.Time, actorID int64) (summary billing.AccrualSummary, resultErr error) {
	release, err := j.Locker.Acquire(ctx, shared.BedChargeLockKey(day), bedChargeLockTTL)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.log().Warn("release accrual lock", slog.Any("error", err))
		}
	}()

	tracker := j.metrics().Track(TaskBedChargeAccrual)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	summary, resultErr = j.Accruer.AccrueBedCharges(ctx, day, actorID)
	j.metrics().AddAccruals("posted", summary.Posted)
	j.metrics().AddAccruals("replayed", summary.Replayed)
	j.metrics().AddAccruals("failed", summary.Failed)
	j.log().Info("bed charges accrued",
		slog.String("day", day.Format(time.DateOnly)),
		slog.Int("posted", summary.Posted),
		slog.Int("replayed", summary.Replayed),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", time.Since(start)))
	return summary, resultErr
}

func (j *BedChargeJob) resolveDay(raw string) (time.Time, error) {
	if raw == "" {
		now := j.now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return today.AddDate(0, 0, -1), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bed charge: day %q must be YYYY-MM-DD", raw)
	}
	return day, nil
}

func (j *BedChargeJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BedChargeJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBedChargeAccrual))
	}
	return slog.Default().With(slog.String("job", TaskBedChargeAccrual))
}

func (j *BedChargeJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
