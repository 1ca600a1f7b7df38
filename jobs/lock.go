package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

// errLockHeld reports that another worker is already running the job.
var errLockHeld = errors.New("jobs: lock held by another worker")

// withLock runs fn while holding key. It returns errLockHeld without running fn when
// another worker owns the key. A nil locker runs fn unguarded.
func withLock(ctx context.Context, locker *redislock.Client, key string, ttl time.Duration, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return errLockHeld
	}
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}
