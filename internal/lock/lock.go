// Package lock provides a lease that keeps scheduler cycles from running in
// more than one process at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the redis key holding the cycle lease
const DefaultKey = "pricetracker:cycle-lock"

// ErrNotHeld is returned when releasing a lease that expired or was taken over
var ErrNotHeld = errors.New("lock not held")

// Locker hands out exclusive, expiring leases
type Locker interface {
	// Acquire tries once to take the lease. ok is false when another holder
	// owns it.
	Acquire(ctx context.Context, ttl time.Duration) (token string, ok bool, err error)

	// Release gives up a lease previously returned by Acquire
	Release(ctx context.Context, token string) error
}

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX on a single key
type RedisLocker struct {
	client redis.UniversalClient
	key    string
}

// NewRedisClient connects to the redis instance at url and verifies it responds
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisLocker creates a locker on key (DefaultKey when empty)
func NewRedisLocker(client redis.UniversalClient, key string) *RedisLocker {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLocker{client: client, key: key}
}

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release implements Locker
func (l *RedisLocker) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
