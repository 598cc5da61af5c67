package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExp — количество знаков после запятой в минимальных денежных единицах.
const minorUnitExp = 2

// Money хранит сумму в минимальных денежных единицах (центах) и код валюты.
type Money struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// NewMoney создаёт сумму в минимальных единицах, нормализуя код валюты.
func NewMoney(amountMinor int64, currency string) Money {
	return Money{AmountMinor: amountMinor, Currency: normalizeCurrency(currency)}
}

// ParseMoney разбирает десятичную строку ("120.00") в минимальные единицы с округлением half-up.
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", amount, err)
	}
	return FromDecimal(d, currency), nil
}

// FromDecimal переводит десятичное значение в минимальные единицы.
func FromDecimal(d decimal.Decimal, currency string) Money {
	minor := d.Shift(minorUnitExp).Round(0).IntPart()
	return NewMoney(minor, currency)
}

// Decimal возвращает сумму в основных единицах для отображения.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.AmountMinor, -minorUnitExp)
}

// IsZero сообщает, что сумма равна нулю.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// Add складывает суммы одной валюты.
func (m Money) Add(other Money) Money {
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}
}

// String форматирует сумму как "285.50 USD".
func (m Money) String() string {
	if m.Currency == "" {
		return m.Decimal().StringFixed(minorUnitExp)
	}
	return m.Decimal().StringFixed(minorUnitExp) + " " + m.Currency
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
