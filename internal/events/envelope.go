// Package events carries domain events from operational modules to the
// finance listeners. Transports (asynq, Kafka) only move envelopes; the
// Bus routes them to handlers that own their own transactions.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
	TypeInvoiceIssued             Type = "finance:invoice_issued"
	TypeDispenseCompleted         Type = "finance:dispense_completed"
	TypeClaimsSettlementRequested Type = "finance:claims_settlement_requested"
	TypePaymentReceived           Type = "finance:payment_received"
	TypeBedChargeAccrued          Type = "finance:bed_charge_accrued"
)

// Types lists every event the finance engine consumes.
var Types = []Type{
	TypeInvoiceIssued,
	TypeDispenseCompleted,
	TypeClaimsSettlementRequested,
	TypePaymentReceived,
	TypeBedChargeAccrued,
}

// Envelope wraps an event payload with delivery metadata.
type Envelope struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	HospitalID int64           `json:"hospital_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an envelope with a fresh id.
func New(typ Type, hospitalID int64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", typ, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       typ,
		HospitalID: hospitalID,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload. A malformed payload is permanent.
func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return Permanent(fmt.Errorf("events: decode %s %s: %w", e.Type, e.ID, err))
	}
	return nil
}

// ParseEnvelope reads a transport body.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, Permanent(fmt.Errorf("events: parse envelope: %w", err))
	}
	if env.ID == "" || env.Type == "" {
		return Envelope{}, Permanent(fmt.Errorf("events: envelope missing id or type"))
	}
	return env, nil
}
