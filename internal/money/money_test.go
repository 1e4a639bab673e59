package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{raw: "40", want: 4000},
		{raw: "0.01", want: 1},
		{raw: "12.5", want: 1250},
		{raw: "1000.00", want: 100000},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: expected %d, got %d", tc.raw, tc.want, got)
		}
	}
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{"0", "-5", "1.005", "abc", "10000000000000.01"} {
		if _, err := Parse(raw); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("parse %q: expected ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(6000); got != "60.00" {
		t.Fatalf("expected 60.00, got %s", got)
	}
	if got := Format(5); got != "0.05" {
		t.Fatalf("expected 0.05, got %s", got)
	}
	if !FromMinor(1250).Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected 12.5")
	}
}
