package infra

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test", nil, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected one successful call, got %d %v", calls, err)
	}
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, "test", nil, func(context.Context) error {
		calls++
		return errors.New("refused")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before giving up, got %d", calls)
	}
}

func TestNewRedisClientRequiresURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
