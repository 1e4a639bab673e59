package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	accounts     map[int64]Account
	numbers      map[string]int64
	transactions []Transaction
	nextAccount  int64
	lastStamp    time.Time
	numberGen    NumberGenerator
	now          func() time.Time
}

// InMemoryOption customizes the in-memory store.
type InMemoryOption func(*inMemoryStore)

// WithNumberGenerator overrides account number generation.
func WithNumberGenerator(gen NumberGenerator) InMemoryOption {
	return func(s *inMemoryStore) { s.numberGen = gen }
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *inMemoryStore) { s.now = now }
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests and
// single-process deployments.
func NewInMemory(opts ...InMemoryOption) Store {
	s := &inMemoryStore{
		accounts:  make(map[int64]Account),
		numbers:   make(map[string]int64),
		numberGen: RandomAccountNumber,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *inMemoryStore) CreateAccount(_ context.Context, ownerID string, kind AccountKind) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created Account
	err := withUniqueNumber(s.numberGen, func(number string) error {
		if _, taken := s.numbers[number]; taken {
			return errNumberTaken
		}
		s.nextAccount++
		created = Account{
			ID:        s.nextAccount,
			Number:    number,
			Kind:      kind,
			OwnerID:   ownerID,
			CreatedAt: s.now().UTC(),
		}
		s.accounts[created.ID] = created
		s.numbers[number] = created.ID
		return nil
	})
	return created, err
}

func (s *inMemoryStore) GetAccount(_ context.Context, id int64) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return account, nil
}

func (s *inMemoryStore) ListAccounts(_ context.Context, ownerID string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0)
	for _, account := range s.accounts {
		if account.OwnerID == ownerID {
			out = append(out, account)
		}
	}
	slices.SortFunc(out, func(a, b Account) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *inMemoryStore) UpdateAccountKind(_ context.Context, id int64, kind AccountKind) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	account.Kind = kind
	s.accounts[id] = account
	return account, nil
}

func (s *inMemoryStore) Adjust(_ context.Context, id, delta int64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if account.Balance+delta < 0 {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrInsufficientFunds)
	}
	account.Balance += delta
	s.accounts[id] = account
	return account, nil
}

func (s *inMemoryStore) DeleteAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if account.Balance != 0 {
		return fmt.Errorf("account %d: %w", id, ErrNonZeroBalance)
	}
	delete(s.accounts, id)
	delete(s.numbers, account.Number)
	return nil
}

func (s *inMemoryStore) Append(_ context.Context, tx Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Timestamps never run backwards so log order matches append order.
	stamp := s.now().UTC()
	if stamp.Before(s.lastStamp) {
		stamp = s.lastStamp
	}
	s.lastStamp = stamp

	tx.ID = int64(len(s.transactions)) + 1
	tx.CreatedAt = stamp
	s.transactions = append(s.transactions, tx)
	return tx, nil
}

func (s *inMemoryStore) GetTransaction(_ context.Context, id int64) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.transactions)) {
		return Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return s.transactions[id-1], nil
}

func (s *inMemoryStore) Query(_ context.Context, filter Filter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if filter.Matches(s.transactions[i]) {
			out = append(out, s.transactions[i])
		}
	}
	return out, nil
}
