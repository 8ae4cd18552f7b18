package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker owns the lock.
var ErrLockHeld = errors.New("lock: held by another worker")

// BedChargeLockKey guards one nightly accrual run.
func BedChargeLockKey(day time.Time) string {
	return fmt.Sprintf("finance:jobs:bed_charge:%s:lock", day.UTC().Format(time.DateOnly))
}

// IntegrityLockKey guards the ledger integrity scan.
func IntegrityLockKey() string {
	return "finance:jobs:gl_integrity:lock"
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out Redis locks that expire on their own if a worker dies.
type Locker struct {
	client *redis.Client
}

// NewLocker constructs a Locker. A nil client grants every lock.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes key for ttl. The returned release only deletes the lock while
// this holder still owns it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
