package model

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Money is an amount in integer cents. It is persisted as BIGINT and rendered
// in JSON as a decimal number with two fractional digits (10.00).
type Money int64

// MaxMoney bounds prices and totals well inside int64 cents.
const MaxMoney Money = 1_000_000_000_000_00

var (
	// ErrMoneyPrecision is returned for amounts with more than two decimals.
	ErrMoneyPrecision = errors.New("amount must have at most 2 decimal places")
	// ErrMoneyRange is returned for amounts beyond MaxMoney.
	ErrMoneyRange = errors.New("amount is out of range")
)

// MoneyFromDecimal converts an exact decimal amount into cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Round(2)) {
		return 0, ErrMoneyPrecision
	}
	cents := d.Shift(2)
	if cents.Abs().GreaterThan(decimal.NewFromInt(int64(MaxMoney))) {
		return 0, errors.Wrap(ErrMoneyRange, d.String())
	}
	return Money(cents.IntPart()), nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }

// Times multiplies a non-negative amount by a non-negative quantity.
func (m Money) Times(qty int) (Money, error) {
	if m < 0 || qty < 0 {
		return 0, errors.Wrapf(ErrMoneyRange, "%s x %d", m, qty)
	}
	if qty > 0 && m > MaxMoney/Money(qty) {
		return 0, errors.Wrapf(ErrMoneyRange, "%s x %d", m, qty)
	}
	return m * Money(qty), nil
}

func (m Money) String() string { return m.Decimal().StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalJSON accepts numbers and numeric strings ("899.99").
func (m *Money) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
