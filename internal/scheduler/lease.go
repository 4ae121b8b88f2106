package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease serializes scheduler passes across replicas with a Redis SET-NX key.
// Only the holder runs a pass; everyone else skips until the TTL lapses or
// the holder releases.
type Lease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewLease builds a lease on the given key. The TTL should comfortably exceed
// one pass so a crashed holder cannot block the schedule for long.
func NewLease(client *redis.Client, key string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

// Acquire attempts to take the lease. It returns false without error when
// another replica holds it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire scheduler lease: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the key only when this replica still owns it, so a
// slow pass that outlived its TTL never releases a successor's lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release frees the lease if this replica still holds it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release scheduler lease: %w", err)
	}
	return nil
}
