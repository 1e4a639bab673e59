package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// connectAttempts and connectInterval bound how long startup waits for a dependency.
const (
	connectAttempts = 10
	connectInterval = 2 * time.Second
)

// withRetry calls connect until it succeeds, ctx ends or the attempts run out.
func withRetry(ctx context.Context, name string, log *slog.Logger, connect func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = connect(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		if log != nil {
			log.Warn("dependency not ready", slog.String("dependency", name), slog.Int("attempt", attempt), slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect %s: %w", name, ctx.Err())
		case <-time.After(connectInterval):
		}
	}
	return fmt.Errorf("connect %s after %d attempts: %w", name, connectAttempts, err)
}
