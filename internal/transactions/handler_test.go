package transactions

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/revobank/revobank/internal/ledger"
)

func TestSubmitRequestAccountAliases(t *testing.T) {
	amount := decimal.RequireFromString("12.50")
	cases := []struct {
		name    string
		req     submitRequest
		wantSrc int64
		wantDst int64
		wantErr bool
	}{
		{name: "deposit by account_id", req: submitRequest{TransactionType: "deposit", AccountID: 3}, wantDst: 3},
		{name: "deposit by to_account_id", req: submitRequest{TransactionType: "deposit", ToAccountID: 3}, wantDst: 3},
		{name: "deposit with agreeing ids", req: submitRequest{TransactionType: "deposit", AccountID: 3, ToAccountID: 3}, wantDst: 3},
		{name: "deposit with conflicting ids", req: submitRequest{TransactionType: "deposit", AccountID: 3, ToAccountID: 4}, wantErr: true},
		{name: "deposit with a source", req: submitRequest{TransactionType: "deposit", AccountID: 3, FromAccountID: 4}, wantErr: true},
		{name: "withdrawal by from_account_id", req: submitRequest{TransactionType: "withdrawal", FromAccountID: 5}, wantSrc: 5},
		{name: "withdrawal with conflicting ids", req: submitRequest{TransactionType: "withdrawal", AccountID: 5, FromAccountID: 6}, wantErr: true},
		{name: "withdrawal with a destination", req: submitRequest{TransactionType: "withdrawal", AccountID: 5, ToAccountID: 6}, wantErr: true},
		{name: "transfer", req: submitRequest{TransactionType: "Transfer", FromAccountID: 1, ToAccountID: 2}, wantSrc: 1, wantDst: 2},
		{name: "transfer with conflicting source", req: submitRequest{TransactionType: "transfer", AccountID: 7, FromAccountID: 1, ToAccountID: 2}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.Amount = amount
			intent, err := tc.req.intent()
			if tc.wantErr {
				if !errors.Is(err, ledger.ErrInvalidIntent) {
					t.Fatalf("expected ErrInvalidIntent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("intent: %v", err)
			}
			if intent.SourceID != tc.wantSrc || intent.DestinationID != tc.wantDst || intent.Amount != 1250 {
				t.Fatalf("unexpected intent %+v", intent)
			}
		})
	}
}
