package httperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/revobank/revobank/internal/ledger"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("%w: bad", ledger.ErrInvalidIntent), want: http.StatusBadRequest},
		{err: fmt.Errorf("account 1: %w", ledger.ErrInsufficientFunds), want: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("account 1: %w", ledger.ErrNotFound), want: http.StatusNotFound},
		{err: ledger.ErrNotOwner, want: http.StatusForbidden},
		{err: ledger.ErrNonZeroBalance, want: http.StatusConflict},
		{err: ledger.ErrTimeout, want: http.StatusServiceUnavailable},
		{err: ledger.ErrStorageFault, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.want, got)
		}
	}
}

func TestFromLedgerHidesStorageDetail(t *testing.T) {
	fe := FromLedger(fmt.Errorf("%w: adjust balance: connection reset", ledger.ErrStorageFault))
	if fe.Message != "storage fault" {
		t.Fatalf("expected generic message, got %q", fe.Message)
	}
}

func TestFromLedgerFlagsFailedCompensation(t *testing.T) {
	err := fmt.Errorf("%w: account 3: connection reset", ledger.ErrCompensationFailed)
	fe := FromLedger(err)
	if fe.Code != http.StatusInternalServerError || fe.Message != "storage fault: compensation failed" {
		t.Fatalf("unexpected mapping %d %q", fe.Code, fe.Message)
	}
}
