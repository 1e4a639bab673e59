package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MaxAmount bounds a single posting so balances cannot overflow int64.
const MaxAmount int64 = 1_000_000_000_000_000

// AccountKind is the closed set of account products.
type AccountKind string

const (
	KindSavings  AccountKind = "savings"
	KindChecking AccountKind = "checking"
)

// ParseAccountKind normalizes and validates an account kind.
func ParseAccountKind(raw string) (AccountKind, error) {
	switch k := AccountKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindSavings, KindChecking:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// TransactionKind is the closed set of balance-changing operations.
type TransactionKind string

const (
	TxDeposit    TransactionKind = "deposit"
	TxWithdrawal TransactionKind = "withdrawal"
	TxTransfer   TransactionKind = "transfer"
)

// Status is the terminal outcome recorded for a transaction attempt.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Account is a balance holder. Balance is in minor units.
type Account struct {
	ID        int64
	Number    string
	Kind      AccountKind
	Balance   int64
	OwnerID   string
	CreatedAt time.Time
}

// Transaction is an immutable log record. SourceID and DestinationID are zero when absent.
type Transaction struct {
	ID            int64
	Kind          TransactionKind
	Amount        int64
	SourceID      int64
	DestinationID int64
	Status        Status
	Description   string
	Reason        string
	CreatedAt     time.Time
}

// Involves reports whether the transaction touches any of the given accounts.
func (t Transaction) Involves(ids ...int64) bool {
	for _, id := range ids {
		if id != 0 && (t.SourceID == id || t.DestinationID == id) {
			return true
		}
	}
	return false
}

// Filter selects transactions for Query. Empty AccountIDs matches every account;
// Start and End are inclusive when non-zero.
type Filter struct {
	AccountIDs []int64
	Start      time.Time
	End        time.Time
}

// Matches applies the filter to a single record.
func (f Filter) Matches(t Transaction) bool {
	if len(f.AccountIDs) > 0 && !t.Involves(f.AccountIDs...) {
		return false
	}
	if !f.Start.IsZero() && t.CreatedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && t.CreatedAt.After(f.End) {
		return false
	}
	return true
}

// AccountStore owns account records. Adjust performs no locking; callers must hold
// exclusivity on the account through a Locker.
type AccountStore interface {
	CreateAccount(ctx context.Context, ownerID string, kind AccountKind) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]Account, error)
	UpdateAccountKind(ctx context.Context, id int64, kind AccountKind) (Account, error)
	Adjust(ctx context.Context, id, delta int64) (Account, error)
	DeleteAccount(ctx context.Context, id int64) error
}

// TransactionLog owns the append-only transaction history. Query returns newest first,
// ties broken by descending id.
type TransactionLog interface {
	Append(ctx context.Context, tx Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	Query(ctx context.Context, filter Filter) ([]Transaction, error)
}

// Store bundles both halves of the persistence contract, which every backend implements.
type Store interface {
	AccountStore
	TransactionLog
}
