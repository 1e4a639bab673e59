package ledger

import (
	"fmt"
	"strings"
)

// Intent is a request to move money. SourceID and DestinationID are zero when absent.
// CallerID, when set, asserts that the caller owns the debited account (the credited
// account for deposits).
type Intent struct {
	Kind          TransactionKind
	Amount        int64
	SourceID      int64
	DestinationID int64
	Description   string
	CallerID      string
}

// Validate checks shape and business rules without touching shared state.
func (in Intent) Validate() error {
	if in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	}
	if in.Amount > MaxAmount {
		return fmt.Errorf("%w: amount exceeds %d", ErrInvalidIntent, MaxAmount)
	}
	if in.SourceID < 0 || in.DestinationID < 0 {
		return fmt.Errorf("%w: account ids must be positive", ErrInvalidIntent)
	}
	switch in.Kind {
	case TxDeposit:
		if in.DestinationID == 0 || in.SourceID != 0 {
			return fmt.Errorf("%w: deposit needs a destination account only", ErrInvalidIntent)
		}
	case TxWithdrawal:
		if in.SourceID == 0 || in.DestinationID != 0 {
			return fmt.Errorf("%w: withdrawal needs a source account only", ErrInvalidIntent)
		}
	case TxTransfer:
		if in.SourceID == 0 || in.DestinationID == 0 {
			return fmt.Errorf("%w: transfer needs source and destination accounts", ErrInvalidIntent)
		}
		if in.SourceID == in.DestinationID {
			return fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidIntent)
		}
	default:
		return fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidIntent, in.Kind)
	}
	return nil
}

// LockSet returns the accounts the intent must hold exclusively.
func (in Intent) LockSet() []int64 {
	switch in.Kind {
	case TxDeposit:
		return []int64{in.DestinationID}
	case TxWithdrawal:
		return []int64{in.SourceID}
	case TxTransfer:
		return []int64{in.SourceID, in.DestinationID}
	}
	return nil
}

// ownedAccount is the account whose ownership a caller assertion is checked against.
func (in Intent) ownedAccount() int64 {
	if in.Kind == TxDeposit {
		return in.DestinationID
	}
	return in.SourceID
}

// legs lists the signed balance changes in application order: debit before credit.
func (in Intent) legs() []leg {
	switch in.Kind {
	case TxDeposit:
		return []leg{{account: in.DestinationID, delta: in.Amount}}
	case TxWithdrawal:
		return []leg{{account: in.SourceID, delta: -in.Amount}}
	case TxTransfer:
		return []leg{
			{account: in.SourceID, delta: -in.Amount},
			{account: in.DestinationID, delta: in.Amount},
		}
	}
	return nil
}

func (in Intent) record(status Status, why string) Transaction {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = defaultDescription(in.Kind)
	}
	return Transaction{
		Kind:          in.Kind,
		Amount:        in.Amount,
		SourceID:      in.SourceID,
		DestinationID: in.DestinationID,
		Status:        status,
		Description:   description,
		Reason:        why,
	}
}

func defaultDescription(kind TransactionKind) string {
	switch kind {
	case TxDeposit:
		return "Deposit"
	case TxWithdrawal:
		return "Withdrawal"
	default:
		return "Transfer"
	}
}

type leg struct {
	account int64
	delta   int64
}
