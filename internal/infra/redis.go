package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the Redis used for locks, idempotency and rate limits.
func NewRedisClient(ctx context.Context, url string, log *slog.Logger) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 3 * time.Second
	}
	client := redis.NewClient(opt)

	err = withRetry(ctx, "redis", log, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
