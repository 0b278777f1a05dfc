package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in major currency units as Shopify reports it
// (MoneyV2.amount is a decimal string, e.g. "44.99").
type Money struct {
	Amount    decimal.Decimal  `json:"amount"`
	Currency  string           `json:"currency"`
	OnSale    bool             `json:"on_sale,omitempty"`
	CompareAt *decimal.Decimal `json:"compare_at,omitempty"`
}

// ParseMoney parses a decimal amount string into Money.
// Empty amounts parse to zero so sparse catalog rows stay loadable.
func ParseMoney(amount, currency string) (Money, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Money{Currency: currency}, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: strings.ToUpper(currency)}, nil
}

// Cents returns the amount in minor units, rounded half away from zero.
func (m Money) Cents() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

// Less reports whether m is cheaper than o. Amounts in different currencies
// are not comparable and never compare as less.
func (m Money) Less(o Money) bool {
	if m.Currency != "" && o.Currency != "" && m.Currency != o.Currency {
		return false
	}
	return m.Amount.LessThan(o.Amount)
}

// Equal reports whether both amounts and currencies match.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
