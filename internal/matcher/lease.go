package matcher

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaseKey = "matcher:tick_lease"

// RedisLease is a best-effort distributed lock that keeps at most one
// matcher tick running per deployment. The TTL must exceed the worst-case
// tick so a crashed holder cannot block matching forever.
type RedisLease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func NewRedisLease(rdb *redis.Client, ttl time.Duration) *RedisLease {
	return &RedisLease{
		rdb:   rdb,
		key:   leaseKey,
		token: uuid.NewString(),
		ttl:   ttl,
	}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// StillHeld reports whether this instance still owns the lease.
func (l *RedisLease) StillHeld(ctx context.Context) (bool, error) {
	val, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == l.token, nil
}

// Release deletes the lease only if this instance still owns it.
func (l *RedisLease) Release(ctx context.Context) {
	held, err := l.StillHeld(ctx)
	if err != nil {
		log.Printf("[LEASE] Release check failed: %v", err)
		return
	}
	if !held {
		return
	}
	if err := l.rdb.Del(ctx, l.key).Err(); err != nil {
		log.Printf("[LEASE] Release failed: %v", err)
	}
}
