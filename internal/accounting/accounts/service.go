package accounts

import (
	"context"
	"strconv"
	"time"

	"github.com/saraya-erp/saraya-erp/internal/shared"
)

// AuditPort records chart of accounts changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) List(ctx context.Context, hospitalID int64) ([]Account, error) {
	return s.repo.List(ctx, hospitalID)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Create adds an account to the hospital's chart.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	account, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.create", account)
	return account, nil
}

// Deactivate hides an account from new postings. Accounts are never deleted.
func (s *Service) Deactivate(ctx context.Context, hospitalID, id, actorID int64) (Account, error) {
	account, err := s.repo.SetActive(ctx, hospitalID, id, false)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, "account.deactivate", account)
	return account, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, account Account) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		HospitalID: account.HospitalID,
		ActorID:    actorID,
		Action:     action,
		Entity:     "account",
		EntityID:   strconv.FormatInt(account.ID, 10),
		Meta:       map[string]any{"code": account.Code},
		At:         s.now(),
	})
}
