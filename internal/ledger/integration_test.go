package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/revobank/revobank/internal/infra"
)

// Backend tests run only when a database is provided:
//
//	LEDGER_TEST_POSTGRES_URL=postgres://... LEDGER_TEST_MYSQL_DSN=user:pw@tcp(...)/db?parseTime=true go test ./internal/ledger
const (
	postgresURLEnv = "LEDGER_TEST_POSTGRES_URL"
	mysqlDSNEnv    = "LEDGER_TEST_MYSQL_DSN"
)

func postgresEngine(t *testing.T) *Engine {
	t.Helper()
	url := os.Getenv(postgresURLEnv)
	if url == "" {
		t.Skipf("%s not set", postgresURLEnv)
	}
	ctx := context.Background()

	pool, err := infra.NewPostgresPool(ctx, url, nil)
	if err != nil {
		t.Fatalf("store pool: %v", err)
	}
	t.Cleanup(pool.Close)
	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// More lock connections than store connections: every store call under lock must
	// still find a free store connection.
	lockPool, err := infra.NewPostgresLockPool(ctx, url, pool.Config().MaxConns+6, nil)
	if err != nil {
		t.Fatalf("lock pool: %v", err)
	}
	t.Cleanup(lockPool.Close)

	return NewEngine(store, store, NewPostgresLocker(lockPool, nil), WithLockTimeout(30*time.Second))
}

func mysqlEngine(t *testing.T) *Engine {
	t.Helper()
	dsn := os.Getenv(mysqlDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", mysqlDSNEnv)
	}
	ctx := context.Background()

	db, err := infra.NewMySQL(ctx, dsn, "silent", nil)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("mysql handle: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	store := NewGormStore(db)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewEngine(store, store, NewMemoryLocker(), WithLockTimeout(30*time.Second))
}

func uniqueOwner(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestPostgresBackendConservesMoney(t *testing.T) {
	assertConservation(t, postgresEngine(t))
}

func TestPostgresBackendOpposingTransfers(t *testing.T) {
	assertOpposingTransfers(t, postgresEngine(t))
}

func TestPostgresBackendDisjointSubmitsDoNotStarve(t *testing.T) {
	assertDisjointSubmits(t, postgresEngine(t), 40)
}

func TestGormBackendConservesMoney(t *testing.T) {
	assertConservation(t, mysqlEngine(t))
}

func TestGormBackendOpposingTransfers(t *testing.T) {
	assertOpposingTransfers(t, mysqlEngine(t))
}

func assertConservation(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	owner := uniqueOwner("conserve")

	const perAccount = 1_000
	ids := make([]int64, 0, 5)
	for range 5 {
		ids = append(ids, openFunded(t, e, owner, perAccount).ID)
	}

	var (
		wg        sync.WaitGroup
		withdrawn atomic.Int64
	)
	for i := range 120 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(i), 11))
			src := ids[r.IntN(len(ids))]
			dst := ids[r.IntN(len(ids))]
			kind := TxTransfer
			if src == dst {
				kind = TxWithdrawal
				dst = 0
			}
			amount := int64(r.IntN(300) + 1)
			out, err := e.Submit(ctx, Intent{Kind: kind, Amount: amount, SourceID: src, DestinationID: dst, CallerID: owner})
			if err != nil && !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
			if kind == TxWithdrawal && out.Status == StatusCompleted {
				withdrawn.Add(amount)
			}
		}()
	}
	wg.Wait()

	var total int64
	for _, id := range ids {
		b := balanceOf(t, e, id)
		if b < 0 {
			t.Fatalf("account %d went negative: %d", id, b)
		}
		total += b
	}
	if want := int64(len(ids))*perAccount - withdrawn.Load(); total != want {
		t.Fatalf("money not conserved: have %d want %d", total, want)
	}
}

func assertOpposingTransfers(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	a := openFunded(t, e, uniqueOwner("opposing-a"), 100)
	b := openFunded(t, e, uniqueOwner("opposing-b"), 100)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src, dst := a.ID, b.ID
			if i%2 == 1 {
				src, dst = dst, src
			}
			if _, err := e.Submit(ctx, Intent{Kind: TxTransfer, Amount: 1, SourceID: src, DestinationID: dst}); err != nil {
				t.Errorf("transfer %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	if balanceOf(t, e, a.ID) != 100 || balanceOf(t, e, b.ID) != 100 {
		t.Fatalf("expected balances restored, got %d/%d", balanceOf(t, e, a.ID), balanceOf(t, e, b.ID))
	}
}

func assertDisjointSubmits(t *testing.T, e *Engine, n int) {
	t.Helper()
	ctx := context.Background()
	owner := uniqueOwner("disjoint")
	ids := make([]int64, 0, n)
	for range n {
		ids = append(ids, openFunded(t, e, owner, 0).ID)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Submit(ctx, Intent{Kind: TxDeposit, Amount: 5, DestinationID: id}); err != nil {
				t.Errorf("deposit into %d: %v", id, err)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Minute):
		t.Fatalf("disjoint deposits did not finish")
	}
	for _, id := range ids {
		if b := balanceOf(t, e, id); b != 5 {
			t.Fatalf("account %d: expected 5 got %d", id, b)
		}
	}
}
