package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by TryWithLock when another holder owns the key.
var ErrNotAcquired = errors.New("lock: already held")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	Prefix       string
}

// DraftKey names the lock serialising mutations of one sale draft.
func DraftKey(draftID string) string {
	return "draft:" + draftID
}

// JobKey names the lock guarding a periodic job so that one instance runs it.
func JobKey(job string) string {
	return "job:" + job
}

// WithLock executes fn while holding a lock for the provided key, waiting until
// the lock is free. The lock is released when fn returns, even on error. When
// the lock cannot be acquired before the context is cancelled the context
// error is returned.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if err := l.check(fn); err != nil {
		return err
	}
	ttl = normaliseTTL(ttl)
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	full := l.key(key)

	for {
		ok, err := l.R.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.Background(), full, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryWithLock runs fn only if the lock is free right now, otherwise it
// returns ErrNotAcquired without waiting.
func (l Locker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if err := l.check(fn); err != nil {
		return err
	}
	token := uuid.NewString()
	full := l.key(key)
	ok, err := l.R.SetNX(ctx, full, token, normaliseTTL(ttl)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer l.release(context.Background(), full, token)
	return fn(ctx)
}

func (l Locker) check(fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	return nil
}

func (l Locker) key(key string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = "lock:"
	}
	return prefix + key
}

func normaliseTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 30 * time.Second
	}
	return ttl
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
