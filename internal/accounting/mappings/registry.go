package mappings

import (
	"context"
	"errors"
	"time"

	"github.com/saraya-erp/saraya-erp/internal/shared"
)

// Repository is the persistence contract behind the Registry.
type Repository interface {
	Resolve(ctx context.Context, hospitalID int64, key Key) (int64, error)
	List(ctx context.Context, hospitalID int64) ([]Mapping, error)
	Upsert(ctx context.Context, hospitalID int64, key Key, accountID int64) (Mapping, error)
}

// AuditPort records mapping changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Registry is the System Account Registry: admin maintenance plus readiness checks.
type Registry struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewRegistry constructs the registry.
func NewRegistry(repo Repository, audit AuditPort) *Registry {
	return &Registry{repo: repo, audit: audit, now: time.Now}
}

// Resolve returns the account mapped to key.
func (r *Registry) Resolve(ctx context.Context, hospitalID int64, key Key) (int64, error) {
	return r.repo.Resolve(ctx, hospitalID, key)
}

// List returns the hospital's mappings.
func (r *Registry) List(ctx context.Context, hospitalID int64) ([]Mapping, error) {
	return r.repo.List(ctx, hospitalID)
}

// Assign maps key to accountID.
func (r *Registry) Assign(ctx context.Context, hospitalID int64, key Key, accountID, actorID int64) (Mapping, error) {
	if !key.Valid() {
		return Mapping{}, Missing(hospitalID, key)
	}
	m, err := r.repo.Upsert(ctx, hospitalID, key, accountID)
	if err != nil {
		return Mapping{}, err
	}
	if r.audit != nil {
		_ = r.audit.Record(ctx, shared.AuditLog{
			HospitalID: hospitalID,
			ActorID:    actorID,
			Action:     "mapping.assign",
			Entity:     "system_account_mapping",
			EntityID:   string(key),
			Meta:       map[string]any{"account_id": accountID},
			At:         r.now(),
		})
	}
	return m, nil
}

// Verify resolves every key and joins the configuration errors found.
// A nil result means the hospital can post every standard transaction.
func (r *Registry) Verify(ctx context.Context, hospitalID int64, keys ...Key) error {
	if len(keys) == 0 {
		keys = AllKeys()
	}
	var errs []error
	for _, key := range keys {
		if _, err := r.repo.Resolve(ctx, hospitalID, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
