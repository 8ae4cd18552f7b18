package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// AuditLog is one finance audit trail record. Meta is stored as JSONB and
// defaults to an empty object.
type AuditLog struct {
	HospitalID int64
	ActorID    int64
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	At         time.Time
}

const insertAuditLog = `INSERT INTO audit_logs (hospital_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	q db.Querier
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(q db.Querier) *AuditLogger {
	return &AuditLogger{q: q}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.HospitalID <= 0 {
		return errors.New("audit log requires hospital_id")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.q.Exec(ctx, insertAuditLog, log.HospitalID, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
