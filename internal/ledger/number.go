package ledger

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// AccountNumberLength is the fixed width of generated account numbers.
const AccountNumberLength = 10

const maxNumberAttempts = 64

var errNumberTaken = errors.New("account number taken")

// NumberGenerator produces candidate account numbers.
type NumberGenerator func() string

// RandomAccountNumber returns AccountNumberLength random digits.
func RandomAccountNumber() string {
	digits := make([]byte, AccountNumberLength)
	for i := range digits {
		digits[i] = byte('0' + rand.IntN(10))
	}
	return string(digits)
}

// withUniqueNumber retries insert with fresh numbers while it reports errNumberTaken.
func withUniqueNumber(gen NumberGenerator, insert func(number string) error) error {
	if gen == nil {
		gen = RandomAccountNumber
	}
	for range maxNumberAttempts {
		err := insert(gen())
		if !errors.Is(err, errNumberTaken) {
			return err
		}
	}
	return fmt.Errorf("%w: no free account number after %d attempts", ErrStorageFault, maxNumberAttempts)
}
