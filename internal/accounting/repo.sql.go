package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/periods"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

const (
	constraintEntrySource   = "uq_journal_entries_source"
	constraintEntryReversal = "uq_journal_entries_reversal"
)

// TxRepository exposes the ledger operations available inside one transaction.
type TxRepository interface {
	ResolveOpenPeriod(ctx context.Context, hospitalID int64, date time.Time) (periods.OpenPeriod, error)
	ResolveAccount(ctx context.Context, hospitalID int64, key mappings.Key) (int64, error)
	EnsureAccountsActive(ctx context.Context, hospitalID int64, accountIDs []int64) error
	FindEntryBySource(ctx context.Context, hospitalID int64, module SourceModule, sourceID uuid.UUID, purpose string) (JournalEntry, bool, error)
	FindReversal(ctx context.Context, entryID int64) (JournalEntry, bool, error)
	GetEntry(ctx context.Context, hospitalID, entryID int64) (JournalEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error)
}

// Repository persists ledger entities.
type Repository struct {
	pool db.TxBeginner
}

// NewRepository constructs Repository.
func NewRepository(pool db.TxBeginner) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	tx       db.Querier
	calendar *periods.Store
	mappings *mappings.Store
}

// NewTxRepository binds ledger, calendar and registry access to one querier,
// normally an open pgx.Tx owned by the caller.
func NewTxRepository(tx db.Querier) TxRepository {
	return &txRepository{tx: tx, calendar: periods.NewStore(tx), mappings: mappings.NewStore(tx)}
}

func (r *txRepository) ResolveOpenPeriod(ctx context.Context, hospitalID int64, date time.Time) (periods.OpenPeriod, error) {
	return periods.ResolveOpenPeriod(ctx, r.calendar, hospitalID, date)
}

func (r *txRepository) ResolveAccount(ctx context.Context, hospitalID int64, key mappings.Key) (int64, error) {
	return r.mappings.Resolve(ctx, hospitalID, key)
}

func (r *txRepository) EnsureAccountsActive(ctx context.Context, hospitalID int64, accountIDs []int64) error {
	if len(accountIDs) == 0 {
		return nil
	}
	rows, err := r.tx.Query(ctx, `SELECT id, is_active FROM accounts WHERE hospital_id=$1 AND id = ANY($2)`, hospitalID, accountIDs)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := make(map[int64]bool, len(accountIDs))
	for rows.Next() {
		var (
			id     int64
			active bool
		)
		if err := rows.Scan(&id, &active); err != nil {
			return err
		}
		found[id] = active
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range accountIDs {
		active, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: account %d", shared.ErrAccountNotFound, id)
		}
		if !active {
			return fmt.Errorf("%w: account %d", shared.ErrAccountInactive, id)
		}
	}
	return nil
}

const entryColumns = `id, hospital_id, number, period_id, entry_date, description, source_module, source_id, purpose, reverses_entry_id, posted_by, posted_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e        JournalEntry
		sourceID *uuid.UUID
	)
	err := row.Scan(&e.ID, &e.HospitalID, &e.Number, &e.PeriodID, &e.Date, &e.Description, &e.SourceModule,
		&sourceID, &e.Purpose, &e.ReversesEntryID, &e.PostedBy, &e.PostedAt)
	if sourceID != nil {
		e.SourceID = *sourceID
	}
	return e, err
}

func (r *txRepository) findOne(ctx context.Context, query string, args ...any) (JournalEntry, bool, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, false, nil
		}
		return JournalEntry{}, false, err
	}
	entry.Lines, err = r.lines(ctx, entry.ID)
	if err != nil {
		return JournalEntry{}, false, err
	}
	return entry, true, nil
}

func (r *txRepository) FindEntryBySource(ctx context.Context, hospitalID int64, module SourceModule, sourceID uuid.UUID, purpose string) (JournalEntry, bool, error) {
	return r.findOne(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE hospital_id=$1 AND source_module=$2 AND source_id=$3 AND purpose=$4`, hospitalID, module, sourceID, purpose)
}

func (r *txRepository) FindReversal(ctx context.Context, entryID int64) (JournalEntry, bool, error) {
	return r.findOne(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reverses_entry_id=$1`, entryID)
}

func (r *txRepository) GetEntry(ctx context.Context, hospitalID, entryID int64) (JournalEntry, error) {
	entry, ok, err := r.findOne(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE hospital_id=$1 AND id=$2`, hospitalID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !ok {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	return entry, nil
}

func (r *txRepository) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var module any
	if filter.SourceModule != "" {
		module = filter.SourceModule
	}
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE hospital_id=$1 AND entry_date BETWEEN $2 AND $3 AND ($4::text IS NULL OR source_module=$4)
ORDER BY entry_date DESC, number DESC LIMIT $5`, filter.HospitalID, filter.From, filter.To, module, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *txRepository) lines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, description
FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Description); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	var sourceID any
	if entry.SourceID != uuid.Nil {
		sourceID = entry.SourceID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (hospital_id, period_id, entry_date, description, source_module, source_id, purpose, reverses_entry_id, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, number, posted_at`,
		entry.HospitalID, entry.PeriodID, entry.Date, entry.Description, entry.SourceModule, sourceID,
		entry.Purpose, entry.ReversesEntryID, entry.PostedBy).Scan(&entry.ID, &entry.Number, &entry.PostedAt)
	if err != nil {
		if db.IsConstraintViolation(err, db.CodeUniqueViolation, constraintEntrySource) ||
			db.IsConstraintViolation(err, db.CodeUniqueViolation, constraintEntryReversal) {
			return JournalEntry{}, shared.ErrDuplicateSource
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		line.EntryID = entryID
		if err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, entryID, line.AccountID, line.Debit, line.Credit, line.Description).Scan(&line.ID); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}
