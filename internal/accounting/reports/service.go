package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/cache"
)

const dateKey = "2006-01-02"

// Service serves cached report views. Cache entries are versioned per
// hospital and invalidated whenever an entry is posted there or a claim
// status changes. Payable aging reads procurement rows this engine never
// writes, so it is always loaded fresh.
type Service struct {
	repo   Repository
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
}

// NewService wires the report service. A nil cache disables caching.
func NewService(repo Repository, c *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// LedgerFilter selects an account ledger window.
type LedgerFilter struct {
	HospitalID int64
	AccountID  int64
	From       time.Time
	To         time.Time
}

// AgingFilter selects an aging snapshot.
type AgingFilter struct {
	HospitalID int64
	Kind       AgingKind
	AsOf       time.Time
}

// TrialBalanceFilter selects a trial balance window.
type TrialBalanceFilter struct {
	HospitalID int64
	From       time.Time
	To         time.Time
}

func validWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return fmt.Errorf("%w: from must not be after to", shared.ErrInvalidInput)
	}
	return nil
}

// GetLedger returns the running-balance ledger of one account.
func (s *Service) GetLedger(ctx context.Context, f LedgerFilter) (Ledger, error) {
	if err := validWindow(f.From, f.To); err != nil {
		return Ledger{}, err
	}
	key, err := s.cache.BuildKey(ctx, f.HospitalID, "ledger", strconv.FormatInt(f.HospitalID, 10),
		strconv.FormatInt(f.AccountID, 10), f.From.Format(dateKey), f.To.Format(dateKey))
	if err != nil {
		return Ledger{}, err
	}
	var out Ledger
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.loadLedger(ctx, f)
	})
	return out, err
}

func (s *Service) loadLedger(ctx context.Context, f LedgerFilter) (Ledger, error) {
	account, err := s.repo.LedgerAccount(ctx, f.HospitalID, f.AccountID)
	if err != nil {
		return Ledger{}, err
	}
	var (
		openingDebit, openingCredit decimal.Decimal
		postings                    []Posting
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		openingDebit, openingCredit, err = s.repo.OpeningSums(gctx, account.ID, f.From)
		return err
	})
	g.Go(func() error {
		var err error
		postings, err = s.repo.Postings(gctx, account.ID, f.From, f.To)
		return err
	})
	if err := g.Wait(); err != nil {
		return Ledger{}, err
	}
	return BuildLedger(account, f.From, f.To, openingDebit, openingCredit, postings), nil
}

// GetAging returns receivable or payable aging as of a date.
func (s *Service) GetAging(ctx context.Context, f AgingFilter) (AgingReport, error) {
	if f.AsOf.IsZero() {
		return AgingReport{}, fmt.Errorf("%w: as_of required", shared.ErrInvalidInput)
	}
	if f.Kind == "" {
		f.Kind = AgingReceivable
	}
	if f.Kind == AgingPayable {
		return s.loadAging(ctx, f)
	}
	key, err := s.cache.BuildKey(ctx, f.HospitalID, "aging", strconv.FormatInt(f.HospitalID, 10),
		string(f.Kind), f.AsOf.Format(dateKey))
	if err != nil {
		return AgingReport{}, err
	}
	var out AgingReport
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.loadAging(ctx, f)
	})
	return out, err
}

func (s *Service) loadAging(ctx context.Context, f AgingFilter) (AgingReport, error) {
	if f.Kind == AgingPayable {
		docs, err := s.repo.PayableDocuments(ctx, f.HospitalID, f.AsOf)
		if err != nil {
			return AgingReport{}, err
		}
		return BuildAging(f.HospitalID, f.Kind, f.AsOf, docs, nil), nil
	}
	var (
		docs    []AgingDocument
		credits []Credit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = s.repo.ReceivableDocuments(gctx, f.HospitalID, f.AsOf)
		return err
	})
	g.Go(func() error {
		var err error
		credits, err = s.repo.UnallocatedCredits(gctx, f.HospitalID, f.AsOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return AgingReport{}, err
	}
	return BuildAging(f.HospitalID, f.Kind, f.AsOf, docs, credits), nil
}

// GetTrialBalance returns the grouped trial balance for a window.
func (s *Service) GetTrialBalance(ctx context.Context, f TrialBalanceFilter) (TrialBalance, error) {
	if err := validWindow(f.From, f.To); err != nil {
		return TrialBalance{}, err
	}
	key, err := s.cache.BuildKey(ctx, f.HospitalID, "tb", strconv.FormatInt(f.HospitalID, 10),
		f.From.Format(dateKey), f.To.Format(dateKey))
	if err != nil {
		return TrialBalance{}, err
	}
	var out TrialBalance
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		balances, err := s.repo.AccountBalances(ctx, f.HospitalID, f.From, f.To)
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(balances), nil
	})
	return out, err
}

// EntryPosted implements accounting.Observer by invalidating the hospital's reports.
func (s *Service) EntryPosted(ctx context.Context, entry accounting.JournalEntry) {
	s.Invalidate(ctx, entry.HospitalID)
}

// Invalidate drops every cached report of a hospital.
func (s *Service) Invalidate(ctx context.Context, hospitalID int64) {
	if err := s.cache.Bump(ctx, hospitalID); err != nil {
		s.logger.Warn("bump report cache", slog.Int64("hospital_id", hospitalID), slog.Any("error", err))
	}
}

// fetch collapses concurrent builds of the same key and reads through the cache.
func (s *Service) fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	ch := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &raw, loader); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}
