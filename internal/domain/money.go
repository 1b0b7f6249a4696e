/**
 * @description
 * Money is an immutable amount + currency pair. Amounts are held as int64 in
 * the smallest currency unit (kobo for NGN), so arithmetic is exact and no
 * value is ever silently rounded. Conversion to and from the gateway's
 * minor-unit convention happens only at the transport boundary.
 */

package domain

import (
	"errors"
	"fmt"
)

// DefaultCurrency is the only currency the ledger operates in.
const DefaultCurrency = "NGN"

var (
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// Money represents an exact monetary value in minor units.
type Money struct {
	Amount   int64  `json:"amount"` // minor units (kobo)
	Currency string `json:"currency"`
}

// NewMoney builds a Money value, rejecting negative amounts.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// NGN is a convenience constructor for naira amounts expressed in kobo.
func NGN(kobo int64) Money {
	return Money{Amount: kobo, Currency: DefaultCurrency}
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other. The result must not be negative.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	if m.Amount < other.Amount {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// LessThan reports whether m is strictly smaller than other.
func (m Money) LessThan(other Money) bool {
	return m.Amount < other.Amount
}

// String renders the value in major units for logs and messages.
func (m Money) String() string {
	return fmt.Sprintf("%s %d.%02d", m.Currency, m.Amount/100, m.Amount%100)
}
