package entity

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Currency identifies a coin on a concrete exchange. Two currencies are the
// same only when both symbol and exchange match; BTC on binance and BTC on
// bybit are different currencies for accounting purposes.
type Currency struct {
	Symbol   string
	Exchange string
}

func (c Currency) String() string {
	return fmt.Sprintf("%s@%s", c.Symbol, c.Exchange)
}

// Amount is a decimal magnitude tagged with its currency. Arithmetic between
// amounts of different currencies is rejected instead of silently producing
// nonsense numbers.
type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewAmount(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, errors.Errorf("currency mismatch: %s vs %s", a.Currency, b.Currency)
	}
	return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency}, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, errors.Errorf("currency mismatch: %s vs %s", a.Currency, b.Currency)
	}
	return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency}, nil
}

// Mul scales the amount by a dimensionless factor.
func (a Amount) Mul(factor decimal.Decimal) Amount {
	return Amount{Value: a.Value.Mul(factor), Currency: a.Currency}
}

func (a Amount) IsPositive() bool {
	return a.Value.IsPositive()
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Value.String(), a.Currency)
}
