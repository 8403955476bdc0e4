package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockAcquire is returned when the lock cannot be taken before the context ends.
var ErrLockAcquire = errors.New("failed to acquire session lock")

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// Locker takes per-session locks shared by every server instance.
type Locker struct {
	client *redis.Client
	poll   time.Duration
}

func NewLocker(client *redis.Client, poll time.Duration) *Locker {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Locker{client: client, poll: poll}
}

// Lock blocks until the lock for sessionID is held or ctx is done.
// The lock expires after ttl if never released.
func (l *Locker) Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error) {
	key := SessionLockKey(sessionID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("set lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return unlockScript.Run(ctx, l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}
