package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PricingPolicy задаёт ставку налога и правила доставки для корзины.
type PricingPolicy struct {
	Currency string
	// TaxRate — доля от подытога (0.0825 для 8.25%).
	TaxRate decimal.Decimal
	// DomesticShippingMinor — фиксированная стоимость доставки по стране.
	DomesticShippingMinor int64
	// FreeShippingThresholdMinor — подытог, начиная с которого доставка бесплатна.
	FreeShippingThresholdMinor int64
}

// DefaultPricingPolicy возвращает политику витрины: USD, 8.25%, доставка 25.00, бесплатно от 500.00.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		Currency:                   "USD",
		TaxRate:                    decimal.RequireFromString("0.0825"),
		DomesticShippingMinor:      2500,
		FreeShippingThresholdMinor: 50000,
	}
}

// TaxRateFromPercent переводит процент ("8.25") в долю.
func TaxRateFromPercent(percent string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(percent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse tax rate %q: %w", percent, err)
	}
	return p.Div(hundred), nil
}

// Validate проверяет, что политика не содержит отрицательных значений.
func (p PricingPolicy) Validate() error {
	switch {
	case normalizeCurrency(p.Currency) == "":
		return fmt.Errorf("%w: currency is required", ErrPricingPolicyInvalid)
	case p.TaxRate.IsNegative():
		return fmt.Errorf("%w: tax rate must be non-negative", ErrPricingPolicyInvalid)
	case p.DomesticShippingMinor < 0:
		return fmt.Errorf("%w: shipping rate must be non-negative", ErrPricingPolicyInvalid)
	case p.FreeShippingThresholdMinor < 0:
		return fmt.Errorf("%w: free shipping threshold must be non-negative", ErrPricingPolicyInvalid)
	}
	return nil
}

// Totals — производные суммы корзины.
type Totals struct {
	Subtotal  Money `json:"subtotal"`
	Tax       Money `json:"tax"`
	Shipping  Money `json:"shipping"`
	Total     Money `json:"total"`
	ItemCount int   `json:"item_count"`
}

// Price вычисляет суммы по текущим позициям. Все суммы уже в минимальных единицах,
// поэтому итог всегда равен сумме отображаемых слагаемых.
func (p PricingPolicy) Price(items []LineItem) Totals {
	currency := normalizeCurrency(p.Currency)

	var subtotal int64
	var count int
	for _, item := range items {
		subtotal += item.Extended()
		count += item.Quantity
	}

	tax := p.taxFor(subtotal)
	shipping := p.shippingFor(subtotal, len(items) == 0)

	return Totals{
		Subtotal:  NewMoney(subtotal, currency),
		Tax:       NewMoney(tax, currency),
		Shipping:  NewMoney(shipping, currency),
		Total:     NewMoney(subtotal+tax+shipping, currency),
		ItemCount: count,
	}
}

// taxFor округляет налог до центов по правилу half-up.
func (p PricingPolicy) taxFor(subtotalMinor int64) int64 {
	if subtotalMinor <= 0 || p.TaxRate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(subtotalMinor).Mul(p.TaxRate).Round(0).IntPart()
}

func (p PricingPolicy) shippingFor(subtotalMinor int64, empty bool) int64 {
	if empty || subtotalMinor >= p.FreeShippingThresholdMinor {
		return 0
	}
	return p.DomesticShippingMinor
}
