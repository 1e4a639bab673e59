package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Locker grants exclusivity over a set of accounts. Implementations acquire in
// ascending id order regardless of the order supplied, so overlapping lock sets can
// never form a wait cycle.
type Locker interface {
	Acquire(ctx context.Context, ids ...int64) (*Guard, error)
}

// Guard releases a held lock set. Release is safe to call more than once.
type Guard struct {
	once    sync.Once
	release func()
}

func newGuard(release func()) *Guard {
	return &Guard{release: release}
}

// Release gives up every lock in the set.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(g.release)
}

// LockOrder returns ids sorted ascending with duplicates and zero ids removed.
func LockOrder(ids []int64) []int64 {
	ordered := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			ordered = append(ordered, id)
		}
	}
	slices.Sort(ordered)
	return slices.Compact(ordered)
}

func timeoutError(ctx context.Context, id int64) error {
	return fmt.Errorf("%w: account %d: %w", ErrTimeout, id, context.Cause(ctx))
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a per-account lock table for a single process. Entries are
// reference counted and dropped once no holder or waiter remains.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

// NewMemoryLocker constructs an empty lock table.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[int64]*lockEntry)}
}

// Acquire blocks until every id is held or ctx is done. On failure nothing stays held.
func (l *MemoryLocker) Acquire(ctx context.Context, ids ...int64) (*Guard, error) {
	ordered := LockOrder(ids)
	if err := ctx.Err(); err != nil && len(ordered) > 0 {
		return nil, timeoutError(ctx, ordered[0])
	}

	held := make([]int64, 0, len(ordered))
	for _, id := range ordered {
		if err := l.lock(ctx, id); err != nil {
			l.unlockAll(held)
			return nil, err
		}
		held = append(held, id)
	}
	return newGuard(func() { l.unlockAll(held) }), nil
}

func (l *MemoryLocker) lock(ctx context.Context, id int64) error {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.drop(id, entry)
		l.mu.Unlock()
		return timeoutError(ctx, id)
	}
}

func (l *MemoryLocker) unlockAll(ids []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(ids) - 1; i >= 0; i-- {
		entry := l.locks[ids[i]]
		<-entry.ch
		l.drop(ids[i], entry)
	}
}

// drop must be called with l.mu held.
func (l *MemoryLocker) drop(id int64, entry *lockEntry) {
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}

// held reports how many accounts currently have a holder or waiter.
func (l *MemoryLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
