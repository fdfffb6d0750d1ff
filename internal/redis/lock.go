package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("doctor-day lock not acquired")
)

const (
	minRetryDelay = 10 * time.Millisecond
	maxRetryDelay = 200 * time.Millisecond
)

// DayLocker guards booking critical sections per doctor and date. Waiters
// retry with backoff until the lock frees up or wait runs out.
type DayLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisDayLocker(client *redis.Client, ttl, wait time.Duration) *DayLocker {
	return &DayLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

// DayLockKey is the Redis key for one doctor's day, e.g.
// lock:doctor-day:<uuid>:2025-06-02.
func DayLockKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("lock:doctor-day:%s:%s", doctorID.String(), date.Format("2006-01-02"))
}

func (l *DayLocker) WithDayLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := DayLockKey(doctorID, date)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// released even if the caller's context is already done
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *DayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	delay := minRetryDelay

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire doctor-day lock: %w", err)
		}
		if ok {
			return nil
		}

		if time.Now().Add(delay).After(deadline) {
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *DayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release doctor-day lock: %w", err)
	}
	return nil
}
