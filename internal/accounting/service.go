package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/saraya-erp/saraya-erp/internal/accounting/periods"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	platformshared "github.com/saraya-erp/saraya-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log platformshared.AuditLog) error
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	ObservePosting(module, outcome string)
}

// Observer is notified after a new entry is committed.
type Observer interface {
	EntryPosted(ctx context.Context, entry JournalEntry)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, entry JournalEntry)

// EntryPosted implements Observer.
func (f ObserverFunc) EntryPosted(ctx context.Context, entry JournalEntry) { f(ctx, entry) }

// Service is the posting engine.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	metrics   MetricsPort
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches posting counters.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// Subscribe registers an observer for committed entries.
func (s *Service) Subscribe(o Observer) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

// PostEntry validates and persists a new journal entry in its own transaction.
// A posting whose source was already recorded returns the existing entry.
func (s *Service) PostEntry(ctx context.Context, input PostingInput) (PostingResult, error) {
	if err := input.Validate(); err != nil {
		s.observe(input.SourceModule, "rejected")
		return PostingResult{}, err
	}
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.PostWithin(ctx, tx, input)
		return err
	})
	if errors.Is(err, shared.ErrDuplicateSource) {
		result, err = s.replayBySource(ctx, input)
	}
	if err != nil {
		s.observe(input.SourceModule, "rejected")
		s.logger.Warn("journal posting rejected",
			slog.Int64("hospital_id", input.HospitalID),
			slog.String("source_module", string(input.SourceModule)),
			slog.String("purpose", input.Purpose),
			slog.Any("error", err))
		return PostingResult{}, err
	}
	s.AfterCommit(ctx, result)
	return result, nil
}

// replayBySource resolves a lost race on the source key by returning the winner.
func (s *Service) replayBySource(ctx context.Context, input PostingInput) (PostingResult, error) {
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var (
			existing JournalEntry
			ok       bool
			err      error
		)
		if input.reversesEntryID != nil {
			existing, ok, err = tx.FindReversal(ctx, *input.reversesEntryID)
		} else {
			existing, ok, err = tx.FindEntryBySource(ctx, input.HospitalID, input.SourceModule, input.SourceID, input.Purpose)
		}
		if err != nil {
			return err
		}
		if !ok {
			return shared.ErrDuplicateSource
		}
		result = PostingResult{Entry: existing, Replayed: true}
		return nil
	})
	return result, err
}

// PostWithin creates the entry using a transaction owned by the caller, so
// document updates commit atomically with the posting. Callers must invoke
// AfterCommit once their transaction commits.
func (s *Service) PostWithin(ctx context.Context, tx TxRepository, input PostingInput) (PostingResult, error) {
	if err := input.Validate(); err != nil {
		return PostingResult{}, err
	}
	if input.SourceID != uuid.Nil {
		existing, ok, err := tx.FindEntryBySource(ctx, input.HospitalID, input.SourceModule, input.SourceID, input.Purpose)
		if err != nil {
			return PostingResult{}, err
		}
		if ok {
			return PostingResult{Entry: existing, Replayed: true}, nil
		}
	}
	open, err := tx.ResolveOpenPeriod(ctx, input.HospitalID, input.Date)
	if err != nil {
		return PostingResult{}, err
	}
	lines, err := s.resolveLines(ctx, tx, input)
	if err != nil {
		return PostingResult{}, err
	}
	entry, err := tx.InsertEntry(ctx, JournalEntry{
		HospitalID:      input.HospitalID,
		PeriodID:        open.Period.ID,
		Date:            periods.DateOnly(input.Date),
		Description:     input.Description,
		SourceModule:    input.SourceModule,
		SourceID:        input.SourceID,
		Purpose:         input.Purpose,
		ReversesEntryID: input.reversesEntryID,
		PostedBy:        input.ActorID,
	})
	if err != nil {
		return PostingResult{}, err
	}
	entry.Lines, err = tx.InsertLines(ctx, entry.ID, lines)
	if err != nil {
		return PostingResult{}, err
	}
	return PostingResult{Entry: entry}, nil
}

func (s *Service) resolveLines(ctx context.Context, tx TxRepository, input PostingInput) ([]JournalLine, error) {
	lines := make([]JournalLine, 0, len(input.Lines))
	var direct []int64
	for _, line := range input.Lines {
		accountID := line.AccountID
		if line.AccountKey != "" {
			id, err := tx.ResolveAccount(ctx, input.HospitalID, line.AccountKey)
			if err != nil {
				return nil, err
			}
			accountID = id
		} else {
			direct = append(direct, accountID)
		}
		lines = append(lines, JournalLine{
			AccountID:   accountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		})
	}
	if err := tx.EnsureAccountsActive(ctx, input.HospitalID, direct); err != nil {
		return nil, err
	}
	return lines, nil
}

// AfterCommit publishes committed postings to audit, metrics and observers.
// Replayed results only count as replays.
func (s *Service) AfterCommit(ctx context.Context, results ...PostingResult) {
	for _, result := range results {
		entry := result.Entry
		if result.Replayed {
			s.observe(entry.SourceModule, "replayed")
			continue
		}
		s.observe(entry.SourceModule, "posted")
		action := "journal.post"
		if entry.IsReversal() {
			action = "journal.reverse"
		}
		if s.audit != nil {
			if err := s.audit.Record(ctx, platformshared.AuditLog{
				HospitalID: entry.HospitalID,
				ActorID:    entry.PostedBy,
				Action:     action,
				Entity:     "journal_entry",
				EntityID:   strconv.FormatInt(entry.ID, 10),
				Meta: map[string]any{
					"number":        entry.Number,
					"source_module": string(entry.SourceModule),
					"source_id":     entry.SourceID.String(),
					"purpose":       entry.Purpose,
				},
				At: s.now(),
			}); err != nil {
				s.logger.Warn("audit journal posting", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
			}
		}
		for _, o := range s.observers {
			o.EntryPosted(ctx, entry)
		}
	}
}

// ReverseEntry posts a mirror entry that cancels entryID. Reversing the same
// entry twice returns the first reversal.
func (s *Service) ReverseEntry(ctx context.Context, in ReverseInput) (PostingResult, error) {
	if in.HospitalID <= 0 || in.EntryID <= 0 {
		return PostingResult{}, fmt.Errorf("%w: hospital and entry id required", shared.ErrInvalidInput)
	}
	var posting PostingInput
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntry(ctx, in.HospitalID, in.EntryID)
		if err != nil {
			return err
		}
		if original.IsReversal() {
			return shared.ErrReversalOfReversal
		}
		existing, ok, err := tx.FindReversal(ctx, original.ID)
		if err != nil {
			return err
		}
		if ok {
			result = PostingResult{Entry: existing, Replayed: true}
			return nil
		}
		date := periods.DateOnly(s.now())
		if in.Date != nil {
			date = periods.DateOnly(*in.Date)
		}
		if date.Before(original.Date) {
			return shared.ErrReversalBeforeOriginal
		}
		posting = reversalPosting(original, in, date)
		result, err = s.PostWithin(ctx, tx, posting)
		return err
	})
	if errors.Is(err, shared.ErrDuplicateSource) {
		result, err = s.replayBySource(ctx, posting)
	}
	if err != nil {
		return PostingResult{}, err
	}
	s.AfterCommit(ctx, result)
	return result, nil
}

func reversalPosting(original JournalEntry, in ReverseInput, date time.Time) PostingInput {
	lines := make([]PostingLine, 0, len(original.Lines))
	for _, line := range original.Lines {
		lines = append(lines, PostingLine{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	description := in.Reason
	if description == "" {
		description = fmt.Sprintf("Reversal of JE %d", original.Number)
	}
	reverses := original.ID
	return PostingInput{
		HospitalID:      original.HospitalID,
		Date:            date,
		Description:     description,
		SourceModule:    original.SourceModule,
		SourceID:        original.SourceID,
		Purpose:         ReversalPurpose(original.ID),
		ActorID:         in.ActorID,
		Lines:           lines,
		reversesEntryID: &reverses,
	}
}

// GetEntry loads an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, hospitalID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntry(ctx, hospitalID, entryID)
		return err
	})
	return entry, err
}

// ListEntries returns entry headers matching filter, newest first.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListEntries(ctx, filter)
		return err
	})
	return entries, err
}

func (s *Service) observe(module SourceModule, outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(string(module), outcome)
	}
}
