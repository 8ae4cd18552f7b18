package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/money"
)

// Match picks the rule that governs a service: an item rule beats a category
// rule. A nil result means the plan default applies.
func (p Plan) Match(categoryID, itemID *int64) (*Rule, RuleScope) {
	var byCategory *Rule
	for i := range p.Rules {
		r := &p.Rules[i]
		if itemID != nil && r.ServiceItemID != nil && *r.ServiceItemID == *itemID {
			return r, ScopeService
		}
		if byCategory == nil && categoryID != nil && r.ServiceCategoryID != nil && *r.ServiceCategoryID == *categoryID {
			byCategory = r
		}
	}
	if byCategory != nil {
		return byCategory, ScopeCategory
	}
	return nil, ScopePlan
}

// ComputeShare splits amount between patient and insurer under plan. Both
// shares are rounded to money.Scale and always add up to the rounded amount.
func ComputeShare(plan Plan, categoryID, itemID *int64, amount decimal.Decimal) (Share, error) {
	if amount.IsNegative() {
		return Share{}, fmt.Errorf("%w: service amount %s is negative", shared.ErrInvalidInput, amount)
	}
	total := money.Round(amount)
	rule, scope := plan.Match(categoryID, itemID)
	out := Share{Scope: scope, AppliedRule: rule}

	if rule == nil {
		if err := checkRate(plan.DefaultCopayRate); err != nil {
			return Share{}, err
		}
		out.PatientShare, out.InsuranceShare = splitPercentage(total, plan.DefaultCopayRate)
		return out, nil
	}
	if err := rule.Validate(); err != nil {
		return Share{}, err
	}
	out.RequiresApproval = rule.RequiresPreAuth

	switch {
	case rule.RuleType == RuleExclusion:
		out.PatientShare, out.InsuranceShare = total, decimal.Zero
		out.RequiresApproval = false
	case rule.CopayType == CopayPercentage:
		out.PatientShare, out.InsuranceShare = splitPercentage(total, rule.CopayValue)
	default:
		patient := money.Min(money.Round(rule.CopayValue), total)
		out.PatientShare, out.InsuranceShare = patient, total.Sub(patient)
	}
	return out, nil
}

// splitPercentage rounds both sides independently and moves any rounding
// remainder onto the larger share.
func splitPercentage(total, rate decimal.Decimal) (patient, insurer decimal.Decimal) {
	patient = money.Round(total.Mul(rate).Div(hundred))
	insurer = money.Round(total.Mul(hundred.Sub(rate)).Div(hundred))
	remainder := total.Sub(patient.Add(insurer))
	if remainder.IsZero() {
		return patient, insurer
	}
	if patient.GreaterThan(insurer) {
		return patient.Add(remainder), insurer
	}
	return patient, insurer.Add(remainder)
}
