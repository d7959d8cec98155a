package rollback

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock guards "concurrent rollbacks of the same service are not supported"
// (spec.md §4.3) at the process-pool level using a Redis SETNX+TTL, the way
// the teacher's internal/infrastructure/cache/redis.go wraps go-redis for a
// single concern. This is defense in depth behind the Engine's own
// ROLLBACK status check, effective across multiple server replicas.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLock builds a Lock over an existing Redis client.
func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Lock{client: client, ttl: ttl}
}

func lockKey(serviceName string) string {
	return fmt.Sprintf("rollback:lock:%s", serviceName)
}

// Acquire attempts to take the lock for serviceName. Returns
// ErrConcurrentRollback if another rollback already holds it.
func (l *Lock) Acquire(ctx context.Context, serviceName string) error {
	ok, err := l.client.SetNX(ctx, lockKey(serviceName), "1", l.ttl).Result()
	if err != nil {
		return fmt.Errorf("rollback: acquire lock: %w", err)
	}
	if !ok {
		return ErrConcurrentRollback
	}
	return nil
}

// Release drops the lock for serviceName. Called once the plan has been
// launched (successfully or not) — the remote plan itself runs detached and
// is not tracked further by this lock.
func (l *Lock) Release(ctx context.Context, serviceName string) error {
	return l.client.Del(ctx, lockKey(serviceName)).Err()
}
