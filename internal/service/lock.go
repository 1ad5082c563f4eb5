package service

import (
	"context"
	"time"

	"carpool/internal/redis"
)

// rideLockTTL bounds how long a crashed handler can hold a ride hostage.
const rideLockTTL = 30 * time.Second

// withRideLock serializes ride mutations behind the per-ride distributed
// lock. External payment calls must NOT run inside fn; acquire, validate,
// release, call out, then re-acquire to commit.
func withRideLock(ctx context.Context, locks redis.LockStoreInterface, rideID string, fn func() error) error {
	locked, err := locks.AcquireRideLock(ctx, rideID, rideLockTTL)
	if err != nil {
		return err
	}
	if !locked {
		return ErrRideLocked
	}
	defer func() {
		_ = locks.ReleaseRideLock(ctx, rideID)
	}()

	return fn()
}
