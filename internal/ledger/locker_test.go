package ledger

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestLockOrder(t *testing.T) {
	got := LockOrder([]int64{9, 0, 3, 9, 1})
	if !slices.Equal(got, []int64{1, 3, 9}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestMemoryLockerDisjointSetsDoNotBlock(t *testing.T) {
	l := NewMemoryLocker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	g1, err := l.Acquire(ctx, 1, 2)
	if err != nil {
		t.Fatalf("acquire 1,2: %v", err)
	}
	defer g1.Release()

	g2, err := l.Acquire(ctx, 3, 4)
	if err != nil {
		t.Fatalf("acquire 3,4 while 1,2 held: %v", err)
	}
	g2.Release()
}

func TestMemoryLockerOverlapTimesOut(t *testing.T) {
	l := NewMemoryLocker()
	g, err := l.Acquire(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, 3, 2); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	g.Release()
	g.Release()
	if n := l.held(); n != 0 {
		t.Fatalf("expected empty lock table, %d entries left", n)
	}

	g, err = l.Acquire(context.Background(), 3)
	if err != nil {
		t.Fatalf("account 3 should be free after the failed attempt: %v", err)
	}
	g.Release()
}

func TestMemoryLockerWaiterProceedsAfterRelease(t *testing.T) {
	l := NewMemoryLocker()
	g, err := l.Acquire(context.Background(), 5)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		g2, err := l.Acquire(context.Background(), 5)
		if err == nil {
			g2.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired while the first still held the lock")
	case <-time.After(20 * time.Millisecond):
	}
	g.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the lock")
	}
}

func TestMemoryLockerOpposingOrdersDoNotDeadlock(t *testing.T) {
	l := NewMemoryLocker()
	var wg sync.WaitGroup
	errs := make(chan error, 200)

	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ids := []int64{1, 2}
			if i%2 == 1 {
				ids = []int64{2, 1}
			}
			g, err := l.Acquire(ctx, ids...)
			if err != nil {
				errs <- err
				return
			}
			g.Release()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("acquire failed: %v", err)
	}
	if n := l.held(); n != 0 {
		t.Fatalf("expected empty lock table, %d entries left", n)
	}
}

func TestMemoryLockerCancelledContext(t *testing.T) {
	l := NewMemoryLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, 1); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
