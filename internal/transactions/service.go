package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/revobank/revobank/internal/ledger"
	"github.com/revobank/revobank/internal/money"
	"github.com/revobank/revobank/internal/notification"
)

// Service submits intents on behalf of a caller and scopes history to the
// caller's accounts.
type Service struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a transaction service. notifier may be nil.
func NewService(engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{engine: engine, notifier: notifier, logger: logger}
}

// Submit runs the intent with the caller asserted as owner of the affected account.
// A completed transfer notifies the owner of the destination account.
func (s *Service) Submit(ctx context.Context, callerID string, intent ledger.Intent) (ledger.Outcome, error) {
	intent.CallerID = callerID
	outcome, err := s.engine.Submit(ctx, intent)
	if err != nil {
		return outcome, err
	}
	if outcome.Status == ledger.StatusCompleted && intent.Kind == ledger.TxTransfer {
		s.notifyRecipient(ctx, callerID, outcome.Transaction)
	}
	return outcome, nil
}

func (s *Service) notifyRecipient(ctx context.Context, callerID string, tx ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	recipient, err := s.engine.GetAccount(ctx, tx.DestinationID)
	if err != nil {
		s.logger.Warn("notification skipped", slog.Int64("transaction_id", tx.ID), slog.Any("error", err))
		return
	}
	if recipient.OwnerID == callerID {
		return
	}
	msg := notification.Message{
		Kind:          notification.KindTransferReceived,
		Destination:   recipient.OwnerID,
		TransactionID: tx.ID,
		Body:          fmt.Sprintf("You received %s on account %s", money.Format(tx.Amount), recipient.Number),
		SentAt:        time.Now().UTC(),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.Int64("transaction_id", tx.ID), slog.Any("error", err))
	}
}

// ListQuery narrows the caller's history. AccountID zero means every account
// the caller owns.
type ListQuery struct {
	AccountID int64
	Start     time.Time
	End       time.Time
}

// List returns the caller's transactions newest first.
func (s *Service) List(ctx context.Context, callerID string, q ListQuery) ([]ledger.Transaction, error) {
	filter := ledger.Filter{Start: q.Start, End: q.End}
	if q.AccountID != 0 {
		account, err := s.engine.GetAccount(ctx, q.AccountID)
		if err != nil {
			return nil, err
		}
		if account.OwnerID != callerID {
			return nil, fmt.Errorf("account %d: %w", q.AccountID, ledger.ErrNotOwner)
		}
		filter.AccountIDs = []int64{account.ID}
	} else {
		owned, err := s.engine.ListAccounts(ctx, callerID)
		if err != nil {
			return nil, err
		}
		if len(owned) == 0 {
			return []ledger.Transaction{}, nil
		}
		for _, a := range owned {
			filter.AccountIDs = append(filter.AccountIDs, a.ID)
		}
	}
	return s.engine.ListTransactions(ctx, filter)
}

// Get returns a transaction touching one of the caller's accounts.
func (s *Service) Get(ctx context.Context, callerID string, id int64) (ledger.Transaction, error) {
	tx, err := s.engine.GetTransaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	for _, accountID := range []int64{tx.SourceID, tx.DestinationID} {
		if accountID == 0 {
			continue
		}
		account, err := s.engine.GetAccount(ctx, accountID)
		if err == nil && account.OwnerID == callerID {
			return tx, nil
		}
	}
	return ledger.Transaction{}, fmt.Errorf("transaction %d: %w", id, ledger.ErrNotOwner)
}
