package mappings

import (
	"fmt"
	"strings"
	"time"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

// Key is a semantic system account identifier resolved per hospital.
type Key string

const (
	KeyBank                Key = "BANK"
	KeyCashOnHand          Key = "CASH_ON_HAND"
	KeyPatientReceivable   Key = "PATIENT_RECEIVABLE"
	KeyInsuranceReceivable Key = "INSURANCE_RECEIVABLE"
	KeyUnbilledRevenue     Key = "UNBILLED_REVENUE"
	KeyAccountsPayable     Key = "ACCOUNTS_PAYABLE"
	KeyInventory           Key = "INVENTORY"
	KeyCOGS                Key = "COGS"
	KeyDiscountAllowed     Key = "DISCOUNT_ALLOWED"
	KeyRevenueServices     Key = "REVENUE_SERVICES"
	KeyRevenuePharmacy     Key = "REVENUE_PHARMACY"
	KeyRevenueLab          Key = "REVENUE_LAB"
	KeyRevenueRadiology    Key = "REVENUE_RADIOLOGY"
	KeyRevenueBed          Key = "REVENUE_BED"
	KeyRevenueSurgery      Key = "REVENUE_SURGERY"
)

var allKeys = []Key{
	KeyBank,
	KeyCashOnHand,
	KeyPatientReceivable,
	KeyInsuranceReceivable,
	KeyUnbilledRevenue,
	KeyAccountsPayable,
	KeyInventory,
	KeyCOGS,
	KeyDiscountAllowed,
	KeyRevenueServices,
	KeyRevenuePharmacy,
	KeyRevenueLab,
	KeyRevenueRadiology,
	KeyRevenueBed,
	KeyRevenueSurgery,
}

// AllKeys lists every system key in a stable order.
func AllKeys() []Key {
	out := make([]Key, len(allKeys))
	copy(out, allKeys)
	return out
}

// Valid reports whether k belongs to the closed key set.
func (k Key) Valid() bool {
	for _, known := range allKeys {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKey normalizes and validates a key.
func ParseKey(raw string) (Key, error) {
	k := Key(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown system account key %q", shared.ErrInvalidInput, raw)
	}
	return k, nil
}

// Mapping links a system key to a concrete account of one hospital.
type Mapping struct {
	HospitalID int64     `json:"hospital_id"`
	Key        Key       `json:"key"`
	AccountID  int64     `json:"account_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Missing builds the configuration error for an unmapped key.
func Missing(hospitalID int64, key Key) error {
	return &shared.ConfigurationError{HospitalID: hospitalID, Key: string(key), Reason: "not mapped"}
}

// Inactive builds the configuration error for a key mapped to a deactivated account.
func Inactive(hospitalID int64, key Key, accountID int64) error {
	return &shared.ConfigurationError{HospitalID: hospitalID, Key: string(key), AccountID: accountID, Reason: "inactive"}
}
