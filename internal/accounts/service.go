package accounts

import (
	"context"
	"fmt"

	"github.com/revobank/revobank/internal/ledger"
)

// Service scopes account operations to the calling owner.
type Service struct {
	engine *ledger.Engine
}

// NewService constructs an account service.
func NewService(engine *ledger.Engine) *Service {
	return &Service{engine: engine}
}

// Open creates a zero-balance account owned by callerID.
func (s *Service) Open(ctx context.Context, callerID string, kind ledger.AccountKind) (ledger.Account, error) {
	return s.engine.OpenAccount(ctx, callerID, kind)
}

// List returns the caller's accounts.
func (s *Service) List(ctx context.Context, callerID string) ([]ledger.Account, error) {
	return s.engine.ListAccounts(ctx, callerID)
}

// Get returns an account the caller owns.
func (s *Service) Get(ctx context.Context, callerID string, id int64) (ledger.Account, error) {
	account, err := s.engine.GetAccount(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if account.OwnerID != callerID {
		return ledger.Account{}, fmt.Errorf("account %d: %w", id, ledger.ErrNotOwner)
	}
	return account, nil
}

// UpdateKind changes the kind of an account the caller owns.
func (s *Service) UpdateKind(ctx context.Context, callerID string, id int64, kind ledger.AccountKind) (ledger.Account, error) {
	if _, err := s.Get(ctx, callerID, id); err != nil {
		return ledger.Account{}, err
	}
	return s.engine.UpdateAccountKind(ctx, id, kind)
}

// Close removes an empty account the caller owns.
func (s *Service) Close(ctx context.Context, callerID string, id int64) error {
	if _, err := s.Get(ctx, callerID, id); err != nil {
		return err
	}
	return s.engine.CloseAccount(ctx, id)
}
