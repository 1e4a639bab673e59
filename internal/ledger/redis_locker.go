package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockPrefix   = "ledger:lock:v1:"
	redisPollInterval = 5 * time.Millisecond
	redisMaxPoll      = 100 * time.Millisecond
)

// releaseScript deletes a lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker coordinates account exclusivity across processes sharing a Redis.
// Each key expires after ttl so a crashed holder cannot wedge an account forever;
// ttl must comfortably exceed the longest apply+log sequence.
type RedisLocker struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker builds a Redis-backed locker.
func NewRedisLocker(cache *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{cache: cache, ttl: ttl, logger: logger}
}

// Acquire takes every key in ascending id order, polling until ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, ids ...int64) (*Guard, error) {
	ordered := LockOrder(ids)
	token := uuid.NewString()

	held := make([]int64, 0, len(ordered))
	for _, id := range ordered {
		if err := l.lock(ctx, id, token); err != nil {
			l.unlockAll(held, token)
			return nil, err
		}
		held = append(held, id)
	}
	return newGuard(func() { l.unlockAll(held, token) }), nil
}

func (l *RedisLocker) lock(ctx context.Context, id int64, token string) error {
	key := redisLockKey(id)
	wait := redisPollInterval
	for {
		if err := ctx.Err(); err != nil {
			return timeoutError(ctx, id)
		}
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return timeoutError(ctx, id)
			}
			return fmt.Errorf("%w: lock account %d: %w", ErrStorageFault, id, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return timeoutError(ctx, id)
		case <-timer.C:
		}
		wait = min(wait*2, redisMaxPoll)
	}
}

func (l *RedisLocker) unlockAll(ids []int64, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(ids) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, l.cache, []string{redisLockKey(ids[i])}, token).Err(); err != nil {
			if l.logger != nil {
				l.logger.Error("release account lock", slog.Int64("account_id", ids[i]), slog.Any("error", err))
			}
		}
	}
}

func redisLockKey(id int64) string {
	return redisLockPrefix + strconv.FormatInt(id, 10)
}
