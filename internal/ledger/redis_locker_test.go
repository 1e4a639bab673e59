package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisLocker(cache, time.Minute, nil), mr
}

func TestRedisLockerExcludesOverlap(t *testing.T) {
	l, mr := newRedisLocker(t)

	g, err := l.Acquire(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !mr.Exists(redisLockKey(1)) || !mr.Exists(redisLockKey(2)) {
		t.Fatalf("expected both lock keys to exist")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, 3, 1); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if mr.Exists(redisLockKey(3)) {
		t.Fatalf("partial acquisition of account 3 was not released")
	}

	g.Release()
	if mr.Exists(redisLockKey(1)) || mr.Exists(redisLockKey(2)) {
		t.Fatalf("expected lock keys to be deleted on release")
	}
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t)

	g, err := l.Acquire(context.Background(), 7)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Simulate expiry followed by another holder taking the key.
	if err := mr.Set(redisLockKey(7), "someone-else"); err != nil {
		t.Fatalf("overwrite key: %v", err)
	}
	g.Release()

	got, err := mr.Get(redisLockKey(7))
	if err != nil || got != "someone-else" {
		t.Fatalf("release removed a lock it no longer owned: %q %v", got, err)
	}
}

func TestRedisLockerKeysExpire(t *testing.T) {
	l, mr := newRedisLocker(t)

	if _, err := l.Acquire(context.Background(), 4); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	g, err := l.Acquire(ctx, 4)
	if err != nil {
		t.Fatalf("expected expired lock to be reclaimable: %v", err)
	}
	g.Release()
}
