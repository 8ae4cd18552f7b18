package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// Repository is the calendar persistence contract. Lock methods only make
// sense when the implementation is bound to a transaction.
type Repository interface {
	FindOpenPeriod(ctx context.Context, hospitalID int64, date time.Time) (OpenPeriod, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetYear(ctx context.Context, id int64) (Year, error)
	LockYear(ctx context.Context, id int64) (Year, error)
	LockPeriod(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context, yearID int64) ([]Period, error)
	ListYears(ctx context.Context, hospitalID int64) ([]Year, error)
	MarkPeriodClosed(ctx context.Context, id, actorID int64, at time.Time) error
	MarkYearClosed(ctx context.Context, id, actorID int64, at time.Time) error
	YearOverlaps(ctx context.Context, hospitalID int64, start, end time.Time) (bool, error)
	InsertYear(ctx context.Context, in CreateYearInput) (Year, error)
	InsertPeriods(ctx context.Context, year Year, periods []Period) ([]Period, error)
}

// Store implements Repository on any querier.
type Store struct {
	db db.Querier
}

// NewStore binds the store to q.
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

const yearColumns = `y.id, y.hospital_id, y.code, y.start_date, y.end_date, y.status, y.closed_at, y.closed_by`
const periodColumns = `p.id, p.year_id, p.hospital_id, p.seq, p.name, p.start_date, p.end_date, p.is_open, p.closed_at, p.closed_by`

func scanYear(row pgx.Row, y *Year) error {
	return row.Scan(&y.ID, &y.HospitalID, &y.Code, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt, &y.ClosedBy)
}

func scanPeriod(row pgx.Row, p *Period) error {
	return row.Scan(&p.ID, &p.YearID, &p.HospitalID, &p.Seq, &p.Name, &p.StartDate, &p.EndDate, &p.IsOpen, &p.ClosedAt, &p.ClosedBy)
}

// FindOpenPeriod share-locks the open period covering date so a concurrent
// close waits for the caller's transaction.
func (s *Store) FindOpenPeriod(ctx context.Context, hospitalID int64, date time.Time) (OpenPeriod, error) {
	var out OpenPeriod
	err := s.db.QueryRow(ctx, `SELECT `+periodColumns+`, `+yearColumns+`
FROM financial_periods p JOIN financial_years y ON y.id = p.year_id
WHERE p.hospital_id=$1 AND $2::date BETWEEN p.start_date AND p.end_date AND p.is_open AND y.status='OPEN'
FOR SHARE OF p`, hospitalID, DateOnly(date)).Scan(
		&out.Period.ID, &out.Period.YearID, &out.Period.HospitalID, &out.Period.Seq, &out.Period.Name,
		&out.Period.StartDate, &out.Period.EndDate, &out.Period.IsOpen, &out.Period.ClosedAt, &out.Period.ClosedBy,
		&out.Year.ID, &out.Year.HospitalID, &out.Year.Code, &out.Year.StartDate, &out.Year.EndDate,
		&out.Year.Status, &out.Year.ClosedAt, &out.Year.ClosedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OpenPeriod{}, shared.ErrPeriodNotOpen
		}
		return OpenPeriod{}, err
	}
	return out, nil
}

func (s *Store) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return s.period(ctx, `SELECT `+periodColumns+` FROM financial_periods p WHERE p.id=$1`, id)
}

func (s *Store) LockPeriod(ctx context.Context, id int64) (Period, error) {
	return s.period(ctx, `SELECT `+periodColumns+` FROM financial_periods p WHERE p.id=$1 FOR UPDATE`, id)
}

func (s *Store) period(ctx context.Context, query string, id int64) (Period, error) {
	var p Period
	if err := scanPeriod(s.db.QueryRow(ctx, query, id), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (s *Store) GetYear(ctx context.Context, id int64) (Year, error) {
	return s.year(ctx, `SELECT `+yearColumns+` FROM financial_years y WHERE y.id=$1`, id)
}

func (s *Store) LockYear(ctx context.Context, id int64) (Year, error) {
	return s.year(ctx, `SELECT `+yearColumns+` FROM financial_years y WHERE y.id=$1 FOR UPDATE`, id)
}

func (s *Store) year(ctx context.Context, query string, id int64) (Year, error) {
	var y Year
	if err := scanYear(s.db.QueryRow(ctx, query, id), &y); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Year{}, shared.ErrYearNotFound
		}
		return Year{}, err
	}
	return y, nil
}

func (s *Store) ListPeriods(ctx context.Context, yearID int64) ([]Period, error) {
	rows, err := s.db.Query(ctx, `SELECT `+periodColumns+` FROM financial_periods p WHERE p.year_id=$1 ORDER BY p.start_date`, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := scanPeriod(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListYears(ctx context.Context, hospitalID int64) ([]Year, error) {
	rows, err := s.db.Query(ctx, `SELECT `+yearColumns+` FROM financial_years y WHERE y.hospital_id=$1 ORDER BY y.start_date DESC`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Year
	for rows.Next() {
		var y Year
		if err := scanYear(rows, &y); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

func (s *Store) MarkPeriodClosed(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE financial_periods SET is_open=FALSE, closed_at=$2, closed_by=$3 WHERE id=$1`, id, at, actorID)
	return err
}

func (s *Store) MarkYearClosed(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE financial_years SET status='CLOSED', closed_at=$2, closed_by=$3 WHERE id=$1`, id, at, actorID)
	return err
}

func (s *Store) YearOverlaps(ctx context.Context, hospitalID int64, start, end time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM financial_years WHERE hospital_id=$1 AND start_date <= $3 AND end_date >= $2)`,
		hospitalID, start, end).Scan(&exists)
	return exists, err
}

func (s *Store) InsertYear(ctx context.Context, in CreateYearInput) (Year, error) {
	y := Year{HospitalID: in.HospitalID, Code: in.Code, StartDate: in.StartDate, EndDate: in.EndDate, Status: YearStatusOpen}
	err := s.db.QueryRow(ctx, `INSERT INTO financial_years (hospital_id, code, start_date, end_date, status)
VALUES ($1, $2, $3, $4, 'OPEN') RETURNING id`, in.HospitalID, in.Code, in.StartDate, in.EndDate).Scan(&y.ID)
	return y, err
}

func (s *Store) InsertPeriods(ctx context.Context, year Year, periods []Period) ([]Period, error) {
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		p.YearID = year.ID
		p.HospitalID = year.HospitalID
		err := s.db.QueryRow(ctx, `INSERT INTO financial_periods (year_id, hospital_id, seq, name, start_date, end_date, is_open)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, p.YearID, p.HospitalID, p.Seq, p.Name, p.StartDate, p.EndDate, p.IsOpen).Scan(&p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// TxRunner executes calendar work inside one transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

type sqlRunner struct {
	pool db.TxBeginner
}

// NewTxRunner returns a TxRunner backed by pool.
func NewTxRunner(pool db.TxBeginner) TxRunner {
	return &sqlRunner{pool: pool}
}

func (r *sqlRunner) InTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}
