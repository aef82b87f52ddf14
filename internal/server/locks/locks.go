// Package locks serializes concurrent reconciliation of the same localId
// across server instances. Locking is best-effort: the unique index on
// local_id stays the correctness guarantee, so a lock that cannot be
// obtained is logged and the caller proceeds.
package locks

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

// Locker hands out per-key locks. The returned release func is never nil.
type Locker interface {
	Lock(ctx context.Context, key string) (release func())
}

// Nop is used when Redis is not configured.
type Nop struct{}

func (Nop) Lock(context.Context, string) func() { return func() {} }

type RedisLocker struct {
	rdb    *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
	logger logging.Logger
}

// NewRedisLocker connects to addr. The connection is checked lazily by the
// first Lock call; Ping can be used at startup.
func NewRedisLocker(addr string, ttl time.Duration, logger logging.Logger) *RedisLocker {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
		PoolSize:    20,
	})
	return &RedisLocker{
		rdb:    rdb,
		locker: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
		logger: logger.With("module", "locks"),
	}
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

func (l *RedisLocker) Lock(ctx context.Context, key string) func() {
	lock, err := l.locker.Obtain(ctx, "lock:intervention:"+key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn(ctx, "could not obtain redis lock; proceeding without it", "key", key)
		return func() {}
	}
	if err != nil {
		l.logger.Warn(ctx, "error obtaining redis lock; proceeding without it", "key", key, "error", err)
		return func() {}
	}

	return func() {
		// the request context may already be done
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn(ctx, "failed to release redis lock", "key", key, "error", err)
		}
	}
}
