package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingPolicy holds the fixed rules used to price an order.
type PricingPolicy struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
}

func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRate:               decimal.RequireFromString("0.10"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShippingFee:       decimal.NewFromInt(10),
	}
}

func (p PricingPolicy) Validate() error {
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("pricing: tax rate must not be negative")
	}
	if p.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("pricing: free shipping threshold must not be negative")
	}
	if p.FlatShippingFee.IsNegative() {
		return fmt.Errorf("pricing: flat shipping fee must not be negative")
	}
	return nil
}

type PricedLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals prices lines under policy. The subtotal is rounded once, on
// the final sum, so per-line fractions never accumulate. Rounding is half-up;
// decimal.Round rounds half away from zero, which is the same for
// non-negative amounts.
func ComputeTotals(lines []PricedLine, policy PricingPolicy) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, ErrEmptyOrder
	}
	sum := decimal.Zero
	for i, l := range lines {
		if l.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("%w: line %d has negative unit price", ErrInvalidLineItem, i)
		}
		if l.Quantity < 1 {
			return Totals{}, fmt.Errorf("%w: line %d has quantity %d", ErrInvalidLineItem, i, l.Quantity)
		}
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	subtotal := sum.Round(2)
	tax := subtotal.Mul(policy.TaxRate).Round(2)
	shipping := policy.FlatShippingFee.Round(2)
	if subtotal.GreaterThan(policy.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
	}, nil
}
