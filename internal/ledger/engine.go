package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultLockTimeout bounds lock acquisition when the caller sets no earlier deadline.
	DefaultLockTimeout = 5 * time.Second
	// DefaultStoreTimeout bounds each store call made while locks are held.
	DefaultStoreTimeout = 10 * time.Second
)

// Outcome is the result of a submitted intent. Transaction is the logged record; it is
// zero only when the attempt never reached the log (invalid intent or timeout).
type Outcome struct {
	Status      Status
	Transaction Transaction
}

// Engine validates intents, serializes them per account and applies them to the store.
// It keeps no state of its own.
type Engine struct {
	accounts     AccountStore
	log          TransactionLog
	locks        Locker
	logger       *slog.Logger
	lockTimeout  time.Duration
	storeTimeout time.Duration
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLockTimeout caps how long Submit and CloseAccount wait for exclusivity.
func WithLockTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithStoreTimeout caps each store call made under lock. A call that runs past it
// fails the attempt with ErrStorageFault instead of holding the locks indefinitely.
func WithStoreTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.storeTimeout = d }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine wires an engine over the given account store, transaction log and locker.
func NewEngine(accounts AccountStore, log TransactionLog, locks Locker, opts ...EngineOption) *Engine {
	e := &Engine{
		accounts:     accounts,
		log:          log,
		locks:        locks,
		logger:       slog.New(slog.DiscardHandler),
		lockTimeout:  DefaultLockTimeout,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenAccount creates a zero-balance account for owner.
func (e *Engine) OpenAccount(ctx context.Context, ownerID string, kind AccountKind) (Account, error) {
	if _, err := ParseAccountKind(string(kind)); err != nil {
		return Account{}, err
	}
	account, err := e.accounts.CreateAccount(ctx, ownerID, kind)
	if err != nil {
		return Account{}, storageFault("create account", err)
	}
	e.logger.Info("account opened", slog.Int64("account_id", account.ID), slog.String("kind", string(kind)))
	return account, nil
}

// GetAccount returns a snapshot of an account.
func (e *Engine) GetAccount(ctx context.Context, id int64) (Account, error) {
	account, err := e.accounts.GetAccount(ctx, id)
	if err != nil {
		return Account{}, storageFault("get account", err)
	}
	return account, nil
}

// ListAccounts returns the owner's accounts ordered by id.
func (e *Engine) ListAccounts(ctx context.Context, ownerID string) ([]Account, error) {
	accounts, err := e.accounts.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, storageFault("list accounts", err)
	}
	return accounts, nil
}

// UpdateAccountKind switches an account between savings and checking.
func (e *Engine) UpdateAccountKind(ctx context.Context, id int64, kind AccountKind) (Account, error) {
	if _, err := ParseAccountKind(string(kind)); err != nil {
		return Account{}, err
	}
	account, err := e.accounts.UpdateAccountKind(ctx, id, kind)
	if err != nil {
		return Account{}, storageFault("update account", err)
	}
	return account, nil
}

// CloseAccount deletes an account whose balance is exactly zero. It takes the account
// lock so no in-flight transaction can still be using it.
func (e *Engine) CloseAccount(ctx context.Context, id int64) error {
	guard, err := e.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer guard.Release()

	opCtx, cancel := e.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := e.accounts.DeleteAccount(opCtx, id); err != nil {
		return storageFault("close account", err)
	}
	e.logger.Info("account closed", slog.Int64("account_id", id))
	return nil
}

// Submit runs one transaction attempt to a terminal state. Rejections decided under
// lock are logged and returned both as a rejected Outcome and as an error wrapping the
// reason; malformed intents and lock timeouts return an error with a zero Outcome.
func (e *Engine) Submit(ctx context.Context, intent Intent) (Outcome, error) {
	if err := intent.Validate(); err != nil {
		return Outcome{}, err
	}

	guard, err := e.acquire(ctx, intent.LockSet()...)
	if err != nil {
		e.logger.Warn("lock acquisition failed", intentAttrs(intent, err)...)
		return Outcome{}, err
	}
	defer guard.Release()

	// Locks are held: finish regardless of caller cancellation so nothing is left half-applied.
	opCtx := context.WithoutCancel(ctx)

	if err := e.check(opCtx, intent); err != nil {
		return e.reject(opCtx, intent, err)
	}

	applied, err := e.apply(opCtx, intent)
	if err != nil {
		return e.reject(opCtx, intent, e.unwind(opCtx, applied, err))
	}

	tx, err := e.appendRecord(opCtx, intent.record(StatusCompleted, ""))
	if err != nil {
		return e.reject(opCtx, intent, e.unwind(opCtx, applied, storageFault("append transaction", err)))
	}

	e.logger.Info("transaction completed", append(intentAttrs(intent, nil), slog.Int64("transaction_id", tx.ID))...)
	return Outcome{Status: StatusCompleted, Transaction: tx}, nil
}

// ListTransactions returns matching transactions newest first.
func (e *Engine) ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidIntent)
	}
	txs, err := e.log.Query(ctx, filter)
	if err != nil {
		return nil, storageFault("query transactions", err)
	}
	return txs, nil
}

// GetTransaction returns a single logged transaction.
func (e *Engine) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	tx, err := e.log.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, storageFault("get transaction", err)
	}
	return tx, nil
}

func (e *Engine) acquire(ctx context.Context, ids ...int64) (*Guard, error) {
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}
	return e.locks.Acquire(ctx, ids...)
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}

func (e *Engine) appendRecord(ctx context.Context, tx Transaction) (Transaction, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.log.Append(ctx, tx)
}

func (e *Engine) adjust(ctx context.Context, id, delta int64) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	_, err := e.accounts.Adjust(ctx, id, delta)
	return err
}

// check re-reads the locked accounts and enforces existence, ownership and funds.
func (e *Engine) check(ctx context.Context, intent Intent) error {
	for _, id := range intent.LockSet() {
		getCtx, cancel := e.storeCtx(ctx)
		account, err := e.accounts.GetAccount(getCtx, id)
		cancel()
		if err != nil {
			return storageFault("load account", err)
		}
		if intent.CallerID != "" && id == intent.ownedAccount() && account.OwnerID != intent.CallerID {
			return fmt.Errorf("account %d: %w", id, ErrNotOwner)
		}
		if id == intent.SourceID && account.Balance < intent.Amount {
			return fmt.Errorf("account %d: %w", id, ErrInsufficientFunds)
		}
	}
	return nil
}

// apply performs each leg in order and returns the legs that took effect.
func (e *Engine) apply(ctx context.Context, intent Intent) ([]leg, error) {
	applied := make([]leg, 0, 2)
	for _, l := range intent.legs() {
		if err := e.adjust(ctx, l.account, l.delta); err != nil {
			return applied, storageFault("adjust balance", err)
		}
		applied = append(applied, l)
	}
	return applied, nil
}

// unwind compensates applied legs and folds any reversal failure into cause.
func (e *Engine) unwind(ctx context.Context, applied []leg, cause error) error {
	if err := e.compensate(ctx, applied); err != nil {
		return errors.Join(err, cause)
	}
	return cause
}

// compensate reverses applied legs newest first. Every account involved is still
// locked, so the reversal cannot race another writer.
func (e *Engine) compensate(ctx context.Context, applied []leg) error {
	var failed []error
	for i := len(applied) - 1; i >= 0; i-- {
		l := applied[i]
		if err := e.adjust(ctx, l.account, -l.delta); err != nil {
			e.logger.Error("compensation failed",
				slog.Int64("account_id", l.account),
				slog.Int64("delta", -l.delta),
				slog.Any("error", err),
			)
			failed = append(failed, fmt.Errorf("account %d: %w", l.account, err))
			continue
		}
		e.logger.Warn("leg compensated", slog.Int64("account_id", l.account), slog.Int64("delta", -l.delta))
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCompensationFailed, errors.Join(failed...))
}

// reject logs a rejected record for intent and returns it with cause.
func (e *Engine) reject(ctx context.Context, intent Intent, cause error) (Outcome, error) {
	level := slog.LevelInfo
	if errors.Is(cause, ErrStorageFault) {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "transaction rejected", intentAttrs(intent, cause)...)

	tx, err := e.appendRecord(ctx, intent.record(StatusRejected, reason(cause)))
	if err != nil {
		e.logger.Error("append rejected transaction", slog.Any("error", err))
		return Outcome{Status: StatusRejected}, errors.Join(cause, storageFault("append rejection", err))
	}
	return Outcome{Status: StatusRejected, Transaction: tx}, cause
}

// storageFault passes domain errors through and marks everything else as a store failure.
func storageFault(op string, err error) error {
	for _, domain := range []error{ErrNotFound, ErrInsufficientFunds, ErrNonZeroBalance, ErrStorageFault, ErrTimeout} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFault, op, err)
}

func intentAttrs(intent Intent, err error) []any {
	attrs := []any{
		slog.String("kind", string(intent.Kind)),
		slog.Int64("amount", intent.Amount),
		slog.Int64("source_id", intent.SourceID),
		slog.Int64("destination_id", intent.DestinationID),
	}
	if err != nil {
		attrs = append(attrs, slog.String("reason", reason(err)), slog.Any("error", err))
	}
	return attrs
}
