package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

// QuoteInput asks for the split of one service under a plan.
type QuoteInput struct {
	HospitalID        int64
	PlanID            int64
	ServiceCategoryID *int64
	ServiceItemID     *int64
	Amount            decimal.Decimal
}

// Service answers coverage questions for billing.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the coverage service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Quote loads the plan and splits the amount.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (Share, error) {
	plan, err := s.repo.GetPlan(ctx, in.HospitalID, in.PlanID)
	if err != nil {
		return Share{}, err
	}
	return ComputeShare(plan, in.ServiceCategoryID, in.ServiceItemID, in.Amount)
}

// GetPlan returns a plan with its rules.
func (s *Service) GetPlan(ctx context.Context, hospitalID, planID int64) (Plan, error) {
	return s.repo.GetPlan(ctx, hospitalID, planID)
}

// ListPlans returns the hospital's plans without rules.
func (s *Service) ListPlans(ctx context.Context, hospitalID int64) ([]Plan, error) {
	return s.repo.ListPlans(ctx, hospitalID)
}

// CreatePlan stores a new plan.
func (s *Service) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	plan.Name = strings.TrimSpace(plan.Name)
	if plan.HospitalID <= 0 || plan.ProviderID <= 0 || plan.Name == "" {
		return Plan{}, fmt.Errorf("%w: hospital, provider and name required", shared.ErrInvalidInput)
	}
	if err := checkRate(plan.DefaultCopayRate); err != nil {
		return Plan{}, err
	}
	created, err := s.repo.CreatePlan(ctx, plan)
	if err != nil {
		return Plan{}, err
	}
	s.logger.Info("coverage plan created", slog.Int64("plan_id", created.ID), slog.Int64("hospital_id", created.HospitalID))
	return created, nil
}

// AddRule validates and attaches a rule to one of the hospital's plans.
func (s *Service) AddRule(ctx context.Context, hospitalID int64, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	if _, err := s.repo.GetPlan(ctx, hospitalID, rule.PlanID); err != nil {
		return Rule{}, err
	}
	return s.repo.AddRule(ctx, rule)
}
