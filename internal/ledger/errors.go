package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIntent marks a malformed request; the caller must fix the input.
	ErrInvalidIntent = errors.New("invalid intent")

	// ErrInvalidKind is returned for an account kind outside the closed set.
	ErrInvalidKind = errors.New("invalid account kind")

	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound indicates the referenced account or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotOwner indicates the asserted caller does not own the account being debited.
	ErrNotOwner = errors.New("account not owned by caller")

	// ErrNonZeroBalance blocks closing an account that still holds funds.
	ErrNonZeroBalance = errors.New("account balance is not zero")

	// ErrTimeout means exclusivity could not be acquired in time. No state was touched.
	ErrTimeout = errors.New("lock acquisition timed out")

	// ErrStorageFault wraps a durable-store failure. Applied legs have been reversed
	// unless the error also matches ErrCompensationFailed.
	ErrStorageFault = errors.New("storage fault")

	// ErrCompensationFailed means a reversal did not apply and balances may not match the
	// log. It also matches ErrStorageFault. Retrying is unsafe until the account is repaired.
	ErrCompensationFailed = fmt.Errorf("%w: compensation failed", ErrStorageFault)
)

// reason returns the sentinel text recorded on a rejected transaction.
func reason(err error) string {
	for _, sentinel := range []error{ErrInsufficientFunds, ErrNotFound, ErrNotOwner, ErrCompensationFailed, ErrStorageFault} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
