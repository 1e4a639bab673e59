package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/revobank/revobank/internal/config"
	"github.com/revobank/revobank/internal/infra"
	"github.com/revobank/revobank/internal/ledger"
	"github.com/revobank/revobank/internal/routes"
)

// backends holds the opened storage, lock and cache handles.
type backends struct {
	store   ledger.Store
	locker  ledger.Locker
	cache   *redis.Client
	checks  map[string]routes.Check
	closers []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: map[string]routes.Check{}}
	if err := b.open(ctx, cfg, logger); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) open(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var pool *pgxpool.Pool // store pool, nil unless STORE_DRIVER=postgres

	switch cfg.StoreDriver {
	case config.DriverMemory:
		b.store = ledger.NewInMemory()
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create sqlite dir: %w", err)
		}
		store, err := ledger.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, store.Close)
		b.checks["sqlite"] = store.Ping
		b.store = store
	case config.DriverPostgres:
		var err error
		pool, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		b.checks["postgres"] = pool.Ping
		store := ledger.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		b.store = store
	case config.DriverMySQL:
		db, err := infra.NewMySQL(ctx, cfg.DatabaseURL, cfg.LogLevel, logger)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("get mysql handle: %w", err)
		}
		b.closers = append(b.closers, sqlDB.Close)
		b.checks["mysql"] = sqlDB.PingContext
		store := ledger.NewGormStore(db)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate mysql: %w", err)
		}
		b.store = store
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, cache.Close)
		b.cache = cache
	}

	switch cfg.LockBackend {
	case config.LockMemory:
		b.locker = ledger.NewMemoryLocker()
	case config.LockRedis:
		if b.cache == nil {
			return errors.New("redis lock backend requires REDIS_URL")
		}
		b.locker = ledger.NewRedisLocker(b.cache, cfg.LockTTL, logger)
	case config.LockPostgres:
		if pool == nil {
			return errors.New("postgres lock backend requires the postgres store")
		}
		lockPool, err := infra.NewPostgresLockPool(ctx, cfg.DatabaseURL, cfg.LockPoolSize, logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() error { lockPool.Close(); return nil })
		b.locker = ledger.NewPostgresLocker(lockPool, logger)
	default:
		return fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
	return nil
}
