// Package coverage splits service amounts between patient and insurer.
package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

// RuleType decides whether the plan pays for a service at all.
type RuleType string

const (
	RuleInclusion RuleType = "INCLUSION"
	RuleExclusion RuleType = "EXCLUSION"
)

// CopayType selects how the patient part is expressed.
type CopayType string

const (
	CopayPercentage  CopayType = "PERCENTAGE"
	CopayFixedAmount CopayType = "FIXED_AMOUNT"
)

// RuleScope reports which level of the plan produced a share.
type RuleScope string

const (
	ScopeService  RuleScope = "SERVICE"
	ScopeCategory RuleScope = "CATEGORY"
	ScopePlan     RuleScope = "PLAN_DEFAULT"
)

var hundred = decimal.NewFromInt(100)

// Plan is an insurer product with a default copay percentage.
type Plan struct {
	ID               int64           `json:"id"`
	HospitalID       int64           `json:"hospital_id"`
	ProviderID       int64           `json:"provider_id"`
	Name             string          `json:"name"`
	DefaultCopayRate decimal.Decimal `json:"default_copay_rate"`
	Rules            []Rule          `json:"rules,omitempty"`
}

// Rule overrides the plan default for a service item or category.
type Rule struct {
	ID                int64           `json:"id"`
	PlanID            int64           `json:"plan_id"`
	ServiceCategoryID *int64          `json:"service_category_id,omitempty"`
	ServiceItemID     *int64          `json:"service_item_id,omitempty"`
	RuleType          RuleType        `json:"rule_type"`
	CopayType         CopayType       `json:"copay_type"`
	CopayValue        decimal.Decimal `json:"copay_value"`
	RequiresPreAuth   bool            `json:"requires_pre_auth"`
}

// Validate checks the rule's enums and copay domain.
func (r Rule) Validate() error {
	if (r.ServiceCategoryID == nil) == (r.ServiceItemID == nil) {
		return fmt.Errorf("%w: rule must target exactly one of service item or category", shared.ErrInvalidInput)
	}
	switch r.RuleType {
	case RuleInclusion, RuleExclusion:
	default:
		return fmt.Errorf("%w: unknown rule type %q", shared.ErrInvalidInput, r.RuleType)
	}
	switch r.CopayType {
	case CopayPercentage:
		return checkRate(r.CopayValue)
	case CopayFixedAmount:
		if r.CopayValue.IsNegative() {
			return fmt.Errorf("%w: fixed copay %s is negative", shared.ErrInvalidCopay, r.CopayValue)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown copay type %q", shared.ErrInvalidInput, r.CopayType)
}

func checkRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return fmt.Errorf("%w: copay rate %s outside 0-100", shared.ErrInvalidCopay, rate)
	}
	return nil
}

// Share is the result of splitting one service amount.
type Share struct {
	PatientShare     decimal.Decimal `json:"patient_share"`
	InsuranceShare   decimal.Decimal `json:"insurance_share"`
	RequiresApproval bool            `json:"requires_approval"`
	Scope            RuleScope       `json:"scope"`
	AppliedRule      *Rule           `json:"applied_rule,omitempty"`
}
