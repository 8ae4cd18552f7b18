package periods

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	platformshared "github.com/saraya-erp/saraya-erp/internal/shared"
)

// AuditPort records calendar changes.
type AuditPort interface {
	Record(ctx context.Context, log platformshared.AuditLog) error
}

// Calendar owns financial years and periods. It never caches a current
// period; every caller resolves the period for its own date.
type Calendar struct {
	runner TxRunner
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewCalendar constructs the calendar service.
func NewCalendar(runner TxRunner, audit AuditPort, logger *slog.Logger) *Calendar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calendar{runner: runner, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (c *Calendar) WithNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// ResolveOpenPeriod returns the open period covering date using repo, which
// should be bound to the caller's transaction.
func ResolveOpenPeriod(ctx context.Context, repo Repository, hospitalID int64, date time.Time) (OpenPeriod, error) {
	open, err := repo.FindOpenPeriod(ctx, hospitalID, date)
	if err != nil {
		return OpenPeriod{}, fmt.Errorf("resolve period for %s: %w", DateOnly(date).Format(time.DateOnly), err)
	}
	return open, nil
}

// ResolveOpenPeriod runs the lookup in its own transaction.
func (c *Calendar) ResolveOpenPeriod(ctx context.Context, hospitalID int64, date time.Time) (OpenPeriod, error) {
	var out OpenPeriod
	err := c.runner.InTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = ResolveOpenPeriod(ctx, repo, hospitalID, date)
		return err
	})
	return out, err
}

// ClosePeriod closes a period after every earlier period of its year.
// Closing an already closed period succeeds without changes.
func (c *Calendar) ClosePeriod(ctx context.Context, hospitalID, periodID, actorID int64) (Period, error) {
	var closed Period
	err := c.runner.InTx(ctx, func(ctx context.Context, repo Repository) error {
		probe, err := repo.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if probe.HospitalID != hospitalID {
			return shared.ErrPeriodNotFound
		}
		if _, err := repo.LockYear(ctx, probe.YearID); err != nil {
			return err
		}
		target, err := repo.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if !target.IsOpen {
			closed = target
			return nil
		}
		siblings, err := repo.ListPeriods(ctx, target.YearID)
		if err != nil {
			return err
		}
		if err := CheckCloseOrder(target, siblings); err != nil {
			return err
		}
		at := c.now().UTC()
		if err := repo.MarkPeriodClosed(ctx, target.ID, actorID, at); err != nil {
			return err
		}
		target.IsOpen = false
		target.ClosedAt = &at
		target.ClosedBy = &actorID
		closed = target
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	c.record(ctx, closed.HospitalID, actorID, "period.close", closed.ID, map[string]any{"name": closed.Name, "year_id": closed.YearID})
	c.logger.Info("financial period closed", slog.Int64("hospital_id", hospitalID), slog.Int64("period_id", closed.ID))
	return closed, nil
}

// CloseYear closes a year once all of its periods are closed.
func (c *Calendar) CloseYear(ctx context.Context, hospitalID, yearID, actorID int64) (Year, error) {
	var year Year
	err := c.runner.InTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		year, err = repo.LockYear(ctx, yearID)
		if err != nil {
			return err
		}
		if year.HospitalID != hospitalID {
			return shared.ErrYearNotFound
		}
		if year.Status == YearStatusClosed {
			return nil
		}
		periods, err := repo.ListPeriods(ctx, yearID)
		if err != nil {
			return err
		}
		if err := CheckYearClosable(periods); err != nil {
			return err
		}
		at := c.now().UTC()
		if err := repo.MarkYearClosed(ctx, yearID, actorID, at); err != nil {
			return err
		}
		year.Status = YearStatusClosed
		year.ClosedAt = &at
		year.ClosedBy = &actorID
		return nil
	})
	if err != nil {
		return Year{}, err
	}
	c.record(ctx, year.HospitalID, actorID, "year.close", year.ID, map[string]any{"code": year.Code})
	return year, nil
}

// CreateYear inserts a year with one open period per calendar month.
func (c *Calendar) CreateYear(ctx context.Context, in CreateYearInput) (Year, []Period, error) {
	if err := in.Validate(); err != nil {
		return Year{}, nil, err
	}
	var (
		year    Year
		periods []Period
	)
	err := c.runner.InTx(ctx, func(ctx context.Context, repo Repository) error {
		overlap, err := repo.YearOverlaps(ctx, in.HospitalID, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if overlap {
			return shared.ErrYearOverlap
		}
		year, err = repo.InsertYear(ctx, in)
		if err != nil {
			return err
		}
		periods, err = repo.InsertPeriods(ctx, year, MonthlyPeriods(in.StartDate, in.EndDate))
		return err
	})
	if err != nil {
		return Year{}, nil, err
	}
	c.record(ctx, year.HospitalID, in.ActorID, "year.create", year.ID, map[string]any{"code": year.Code, "periods": len(periods)})
	return year, periods, nil
}

// ListPeriods returns the periods of a year in date order.
func (c *Calendar) ListPeriods(ctx context.Context, hospitalID, yearID int64) ([]Period, error) {
	var out []Period
	err := c.runner.InTx(ctx, func(ctx context.Context, repo Repository) error {
		year, err := repo.GetYear(ctx, yearID)
		if err != nil {
			return err
		}
		if year.HospitalID != hospitalID {
			return shared.ErrYearNotFound
		}
		out, err = repo.ListPeriods(ctx, yearID)
		return err
	})
	return out, err
}

// ListYears returns the hospital's years, newest first.
func (c *Calendar) ListYears(ctx context.Context, hospitalID int64) ([]Year, error) {
	var out []Year
	err := c.runner.InTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.ListYears(ctx, hospitalID)
		return err
	})
	return out, err
}

func (c *Calendar) record(ctx context.Context, hospitalID, actorID int64, action string, id int64, meta map[string]any) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(ctx, platformshared.AuditLog{
		HospitalID: hospitalID,
		ActorID:    actorID,
		Action:     action,
		Entity:     "financial_calendar",
		EntityID:   strconv.FormatInt(id, 10),
		Meta:       meta,
		At:         c.now(),
	}); err != nil {
		c.logger.Warn("audit calendar change", slog.String("action", action), slog.Any("error", err))
	}
}
