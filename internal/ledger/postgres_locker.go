package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLocker maps account exclusivity onto session-level advisory locks. Each
// lock set pins one pooled connection until released, so the pool must be dedicated
// to the locker and never shared with the store.
type PostgresLocker struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresLocker builds an advisory-lock locker on a dedicated pool. When the pool
// is exhausted, Acquire waits until ctx ends and reports ErrTimeout.
func NewPostgresLocker(db *pgxpool.Pool, logger *slog.Logger) *PostgresLocker {
	return &PostgresLocker{db: db, logger: logger}
}

// Acquire takes pg_advisory_lock for each id in ascending order.
func (l *PostgresLocker) Acquire(ctx context.Context, ids ...int64) (*Guard, error) {
	ordered := LockOrder(ids)
	if len(ordered) == 0 {
		return newGuard(func() {}), nil
	}

	conn, err := l.db.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(ctx, ordered[0])
		}
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrStorageFault, err)
	}

	held := make([]int64, 0, len(ordered))
	unlock := func() {
		// Cancelled queries leave pgx connections closed, which also drops their locks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if _, err := conn.Exec(releaseCtx, `SELECT pg_advisory_unlock($1)`, held[i]); err != nil && l.logger != nil {
				l.logger.Error("release advisory lock", slog.Int64("account_id", held[i]), slog.Any("error", err))
			}
		}
		conn.Release()
	}

	for _, id := range ordered {
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, id); err != nil {
			unlock()
			if ctx.Err() != nil {
				return nil, timeoutError(ctx, id)
			}
			return nil, fmt.Errorf("%w: advisory lock %d: %w", ErrStorageFault, id, err)
		}
		held = append(held, id)
	}
	return newGuard(unlock), nil
}
