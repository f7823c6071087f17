package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process owns the lock
var ErrLockHeld = errors.New("lock already held")

var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RunLock prevents two pipeline runs for the same run id from overlapping
type RunLock struct {
	client *Client
	prefix string
}

// NewRunLock creates a run lock helper
func NewRunLock(client *Client, prefix string) *RunLock {
	return &RunLock{client: client, prefix: prefix}
}

// Acquire takes the lock for name; the returned release func is always safe to call
func (l *RunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !l.client.Enabled() {
		return noop, nil
	}

	key := fmt.Sprintf("%s:lock:%s", l.prefix, name)
	token := uuid.NewString()

	ok, err := l.client.Redis().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return noop, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return noop, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.Redis(), []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}, nil
}
