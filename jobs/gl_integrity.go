package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saraya-erp/saraya-erp/internal/jobs"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
	"github.com/saraya-erp/saraya-erp/internal/shared"
)

const integrityLockTTL = 15 * time.Minute

// IntegrityResult is the scan outcome for one hospital.
type IntegrityResult struct {
	HospitalID int64
	Entries    int
	Unbalanced []int64
}

// IntegrityRepository finds entries whose lines do not balance.
type IntegrityRepository interface {
	ScanEntries(ctx context.Context, hospitalID int64) ([]IntegrityResult, error)
}

// IntegrityStore implements IntegrityRepository with pgx.
type IntegrityStore struct {
	db db.Querier
}

func NewIntegrityStore(q db.Querier) *IntegrityStore {
	return &IntegrityStore{db: q}
}

// ScanEntries groups every entry by hospital and lists the unbalanced ones.
// Entries with fewer than two lines count as unbalanced.
func (s *IntegrityStore) ScanEntries(ctx context.Context, hospitalID int64) ([]IntegrityResult, error) {
	rows, err := s.db.Query(ctx, `WITH totals AS (
  SELECT e.hospital_id, e.id,
    COALESCE(SUM(l.debit), 0) AS debit, COALESCE(SUM(l.credit), 0) AS credit, COUNT(l.id) AS lines
  FROM journal_entries e LEFT JOIN journal_lines l ON l.entry_id = e.id
  WHERE $1 = 0 OR e.hospital_id = $1
  GROUP BY e.hospital_id, e.id
)
SELECT hospital_id, COUNT(*),
  COALESCE(array_agg(id ORDER BY id) FILTER (WHERE debit <> credit OR lines < 2), '{}')
FROM totals GROUP BY hospital_id ORDER BY hospital_id`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IntegrityResult
	for rows.Next() {
		var r IntegrityResult
		if err := rows.Scan(&r.HospitalID, &r.Entries, &r.Unbalanced); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GLIntegrityJob verifies the balance invariant over the whole ledger and
// publishes the violation count per hospital.
type GLIntegrityJob struct {
	Repo    IntegrityRepository
	Locker  *shared.Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(repo IntegrityRepository, locker *shared.Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Repo: repo, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity task.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("gl integrity: dependencies not configured")
	}
	var payload GLIntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("gl integrity payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.HospitalID)
	if errors.Is(err, shared.ErrLockHeld) {
		return nil
	}
	return err
}

// Run scans the ledger and returns the total number of unbalanced entries.
func (j *GLIntegrityJob) Run(ctx context.Context, hospitalID int64) (violations int, resultErr error) {
	release, err := j.Locker.Acquire(ctx, shared.IntegrityLockKey(), integrityLockTTL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()

	tracker := j.metrics().Track(TaskGLIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	results, err := j.Repo.ScanEntries(ctx, hospitalID)
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		j.metrics().SetIntegrityViolations(r.HospitalID, len(r.Unbalanced))
		violations += len(r.Unbalanced)
		if len(r.Unbalanced) > 0 {
			j.log().Error("unbalanced journal entries",
				slog.Int64("hospital_id", r.HospitalID),
				slog.Int("count", len(r.Unbalanced)),
				slog.Any("entry_ids", r.Unbalanced))
		}
	}
	j.log().Info("GL integrity check executed", slog.Int("hospitals", len(results)), slog.Int("violations", violations))
	return violations, nil
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}
