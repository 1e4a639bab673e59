package transactions

import (
	"context"
	"errors"
	"testing"

	"github.com/revobank/revobank/internal/ledger"
	"github.com/revobank/revobank/internal/logging"
	"github.com/revobank/revobank/internal/notification"
)

func newTestService(t *testing.T) (*Service, *ledger.Engine, *notification.Recorder) {
	t.Helper()
	store := ledger.NewInMemory()
	engine := ledger.NewEngine(store, store, ledger.NewMemoryLocker())
	recorder := &notification.Recorder{}
	return NewService(engine, recorder, logging.Discard()), engine, recorder
}

func TestSubmitAssertsCaller(t *testing.T) {
	svc, engine, recorder := newTestService(t)
	ctx := context.Background()
	a, _ := engine.OpenAccount(ctx, "alice", ledger.KindChecking)
	b, _ := engine.OpenAccount(ctx, "alice", ledger.KindSavings)

	if _, err := svc.Submit(ctx, "alice", ledger.Intent{Kind: ledger.TxDeposit, Amount: 500, DestinationID: a.ID}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Submit(ctx, "mallory", ledger.Intent{Kind: ledger.TxWithdrawal, Amount: 100, SourceID: a.ID}); !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.Submit(ctx, "alice", ledger.Intent{Kind: ledger.TxTransfer, Amount: 100, SourceID: a.ID, DestinationID: b.ID}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if n := len(recorder.Messages()); n != 0 {
		t.Fatalf("transfers between own accounts should not notify, got %d", n)
	}
}

func TestListScopesToCaller(t *testing.T) {
	svc, engine, _ := newTestService(t)
	ctx := context.Background()
	a, _ := engine.OpenAccount(ctx, "alice", ledger.KindChecking)
	if _, err := svc.Submit(ctx, "alice", ledger.Intent{Kind: ledger.TxDeposit, Amount: 10, DestinationID: a.ID}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	none, err := svc.List(ctx, "nobody", ListQuery{})
	if err != nil || len(none) != 0 {
		t.Fatalf("caller without accounts must see nothing, got %d %v", len(none), err)
	}
	mine, err := svc.List(ctx, "alice", ListQuery{})
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected alice's deposit, got %d %v", len(mine), err)
	}

	if _, err := svc.Get(ctx, "nobody", mine[0].ID); !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.Get(ctx, "alice", mine[0].ID); err != nil {
		t.Fatalf("get: %v", err)
	}
}
