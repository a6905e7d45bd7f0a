package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const sweepLockKey = "qapulse:sweep:lock"

// releaseScript deletes the lock only while it still holds our instance ID,
// so an expired lock taken over by another instance is left alone.
var releaseScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// SweepLock is a SETNX lease that lets one instance at a time sweep stale
// sentiments. The TTL bounds how long a crashed holder blocks the others.
type SweepLock struct {
	rdb        *goredis.Client
	instanceID string
	key        string
	ttl        time.Duration
}

// NewSweepLock creates a lock. instanceID must be unique per process.
func NewSweepLock(rdb *goredis.Client, instanceID string, ttl time.Duration) *SweepLock {
	return &SweepLock{
		rdb:        rdb,
		instanceID: instanceID,
		key:        sweepLockKey,
		ttl:        ttl,
	}
}

// TryAcquire reports whether this instance now holds the lock.
func (l *SweepLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	return ok, nil
}

// Release gives the lock up if this instance still holds it.
func (l *SweepLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release sweep lock: %w", err)
	}
	return nil
}
