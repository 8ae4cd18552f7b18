package coverage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// Repository persists plans and rules.
type Repository interface {
	GetPlan(ctx context.Context, hospitalID, planID int64) (Plan, error)
	ListPlans(ctx context.Context, hospitalID int64) ([]Plan, error)
	CreatePlan(ctx context.Context, plan Plan) (Plan, error)
	AddRule(ctx context.Context, rule Rule) (Rule, error)
}

// Store implements Repository over pgx.
type Store struct {
	db db.Querier
}

// NewStore constructs Store.
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

func (s *Store) GetPlan(ctx context.Context, hospitalID, planID int64) (Plan, error) {
	var p Plan
	err := s.db.QueryRow(ctx, `SELECT id, hospital_id, provider_id, name, default_copay_rate
FROM coverage_plans WHERE hospital_id=$1 AND id=$2`, hospitalID, planID).
		Scan(&p.ID, &p.HospitalID, &p.ProviderID, &p.Name, &p.DefaultCopayRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, shared.ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, plan_id, service_category_id, service_item_id, rule_type, copay_type, copay_value, requires_pre_auth
FROM coverage_rules WHERE plan_id=$1 ORDER BY id`, planID)
	if err != nil {
		return Plan{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.PlanID, &r.ServiceCategoryID, &r.ServiceItemID, &r.RuleType, &r.CopayType, &r.CopayValue, &r.RequiresPreAuth); err != nil {
			return Plan{}, err
		}
		p.Rules = append(p.Rules, r)
	}
	return p, rows.Err()
}

func (s *Store) ListPlans(ctx context.Context, hospitalID int64) ([]Plan, error) {
	rows, err := s.db.Query(ctx, `SELECT id, hospital_id, provider_id, name, default_copay_rate
FROM coverage_plans WHERE hospital_id=$1 ORDER BY name`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.HospitalID, &p.ProviderID, &p.Name, &p.DefaultCopayRate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO coverage_plans (hospital_id, provider_id, name, default_copay_rate)
VALUES ($1,$2,$3,$4) RETURNING id`, plan.HospitalID, plan.ProviderID, plan.Name, plan.DefaultCopayRate).Scan(&plan.ID)
	return plan, err
}

func (s *Store) AddRule(ctx context.Context, rule Rule) (Rule, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO coverage_rules (plan_id, service_category_id, service_item_id, rule_type, copay_type, copay_value, requires_pre_auth)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, rule.PlanID, rule.ServiceCategoryID, rule.ServiceItemID, rule.RuleType,
		rule.CopayType, rule.CopayValue, rule.RequiresPreAuth).Scan(&rule.ID)
	return rule, err
}
