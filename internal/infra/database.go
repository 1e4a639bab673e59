package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool builds a pgx pool for the ledger store and waits until the server answers.
func NewPostgresPool(ctx context.Context, url string, log *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(url)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns < 10 {
		cfg.MaxConns = 10
	}
	cfg.MinConns = 2
	return connectPool(ctx, "postgres", cfg, log)
}

// NewPostgresLockPool builds the pool used only for advisory locks. Every held lock set
// pins one of its connections, so it must never be shared with the store: store calls
// made under lock would otherwise wait on connections their own holders keep.
func NewPostgresLockPool(ctx context.Context, url string, size int32, log *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(url)
	if err != nil {
		return nil, err
	}
	if size < 1 {
		size = 1
	}
	cfg.MaxConns = size
	cfg.MinConns = 0
	return connectPool(ctx, "postgres locks", cfg, log)
}

func poolConfig(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	return cfg, nil
}

func connectPool(ctx context.Context, name string, cfg *pgxpool.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := withRetry(ctx, name, log, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
