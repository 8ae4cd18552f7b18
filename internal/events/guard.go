package events

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	guardSeenPrefix  = "finance:events:seen:"
	guardLeasePrefix = "finance:events:lease:"

	// defaultGuardLease bounds how long a crashed handler blocks redelivery.
	defaultGuardLease = 2 * time.Minute
)

var (
	// ErrGuardKeyRequired indicates an empty event id.
	ErrGuardKeyRequired = errors.New("events: guard key required")
	// ErrDeliveryInFlight indicates another worker is handling the same event.
	ErrDeliveryInFlight = errors.New("events: delivery in flight")
)

// GuardState is the outcome of Guard.Acquire.
type GuardState int

const (
	// GuardAcquired means the caller holds the lease and must Complete or Release.
	GuardAcquired GuardState = iota
	// GuardSeen means the event was already handled.
	GuardSeen
	// GuardBusy means another worker holds the lease.
	GuardBusy
)

// Guard deduplicates deliveries in two phases. A short lease covers the
// handler run and the seen marker is written only after it succeeds.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
	lease  time.Duration
}

// NewGuard constructs the guard. ttl is how long handled ids are remembered.
// A nil client disables it.
func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{client: client, ttl: ttl, lease: defaultGuardLease}
}

// WithLease overrides the in-flight lease duration.
func (g *Guard) WithLease(d time.Duration) *Guard {
	if d > 0 {
		g.lease = d
	}
	return g
}

// Acquire takes the lease for id unless the event was handled already.
func (g *Guard) Acquire(ctx context.Context, id string) (GuardState, error) {
	if g == nil || g.client == nil {
		return GuardAcquired, nil
	}
	if id == "" {
		return GuardBusy, ErrGuardKeyRequired
	}
	ok, err := g.client.SetNX(ctx, guardLeasePrefix+id, time.Now().UTC().Unix(), g.lease).Result()
	if err != nil {
		return GuardBusy, err
	}
	if !ok {
		if seen, err := g.seen(ctx, id); err == nil && seen {
			return GuardSeen, nil
		}
		return GuardBusy, nil
	}
	// Complete writes seen before dropping the lease, so checking after the
	// lease is held cannot miss a finished run.
	seen, err := g.seen(ctx, id)
	if err != nil || seen {
		_ = g.client.Del(ctx, guardLeasePrefix+id).Err()
		if err != nil {
			return GuardBusy, err
		}
		return GuardSeen, nil
	}
	return GuardAcquired, nil
}

func (g *Guard) seen(ctx context.Context, id string) (bool, error) {
	n, err := g.client.Exists(ctx, guardSeenPrefix+id).Result()
	return n > 0, err
}

// Complete records id as handled and drops its lease.
func (g *Guard) Complete(ctx context.Context, id string) error {
	if g == nil || g.client == nil {
		return nil
	}
	if id == "" {
		return ErrGuardKeyRequired
	}
	_, err := g.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, guardSeenPrefix+id, time.Now().UTC().Unix(), g.ttl)
		p.Del(ctx, guardLeasePrefix+id)
		return nil
	})
	return err
}

// Release drops the lease so a redelivery is processed again.
func (g *Guard) Release(ctx context.Context, id string) error {
	if g == nil || g.client == nil {
		return nil
	}
	if id == "" {
		return ErrGuardKeyRequired
	}
	return g.client.Del(ctx, guardLeasePrefix+id).Err()
}
