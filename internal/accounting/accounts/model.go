package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type grow with debits.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// SignedAmount returns the effect of a line on an account of type t.
func (t AccountType) SignedAmount(debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// Account models a chart of accounts node owned by one hospital.
type Account struct {
	ID         int64       `json:"id"`
	HospitalID int64       `json:"hospital_id"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	ParentID   *int64      `json:"parent_id,omitempty"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	HospitalID int64       `json:"-"`
	Code       string      `json:"code" validate:"required,max=32"`
	Name       string      `json:"name" validate:"required,max=160"`
	Type       AccountType `json:"type" validate:"required"`
	ParentID   *int64      `json:"parent_id,omitempty"`
	ActorID    int64       `json:"-"`
}

// Normalize trims user supplied text.
func (in *CreateInput) Normalize() {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Type = AccountType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
}

// Validate ensures the account can be created.
func (in CreateInput) Validate() error {
	if in.HospitalID <= 0 {
		return fmt.Errorf("%w: hospital required", shared.ErrInvalidInput)
	}
	if in.Code == "" || in.Name == "" {
		return fmt.Errorf("%w: code and name required", shared.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", shared.ErrInvalidInput, in.Type)
	}
	return nil
}
