package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := NewLocker(client)
	key := BedChargeLockKey(time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC))
	require.Equal(t, "finance:jobs:bed_charge:2026-03-04:lock", key)

	release, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	release, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestLockerReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := NewLocker(client)

	release, err := locker.Acquire(ctx, IntegrityLockKey(), time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, IntegrityLockKey(), time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	require.True(t, mr.Exists(IntegrityLockKey()))
}

func TestNilLockerGrants(t *testing.T) {
	release, err := (*Locker)(nil).Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}
