package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		lines    []PricedLine
		subtotal string
		tax      string
		shipping string
		total    string
	}{
		{
			name:     "flat fee under threshold",
			lines:    []PricedLine{{UnitPrice: dec("20.00"), Quantity: 3}},
			subtotal: "60.00", tax: "6.00", shipping: "10.00", total: "76.00",
		},
		{
			name:     "threshold itself still pays shipping",
			lines:    []PricedLine{{UnitPrice: dec("50.00"), Quantity: 2}},
			subtotal: "100.00", tax: "10.00", shipping: "10.00", total: "120.00",
		},
		{
			name:     "just over threshold ships free",
			lines:    []PricedLine{{UnitPrice: dec("100.01"), Quantity: 1}},
			subtotal: "100.01", tax: "10.00", shipping: "0", total: "110.01",
		},
		{
			name: "subtotal rounded once on the sum",
			// 3 x 0.335 = 1.005 -> 1.01; per-line rounding would give 3 x 0.34 = 1.02
			lines:    []PricedLine{{UnitPrice: dec("0.335"), Quantity: 3}},
			subtotal: "1.01", tax: "0.10", shipping: "10.00", total: "11.11",
		},
		{
			name:     "tax rounds half up",
			lines:    []PricedLine{{UnitPrice: dec("0.45"), Quantity: 1}},
			subtotal: "0.45", tax: "0.05", shipping: "10.00", total: "10.50",
		},
		{
			name:     "free items",
			lines:    []PricedLine{{UnitPrice: decimal.Zero, Quantity: 4}},
			subtotal: "0", tax: "0", shipping: "10.00", total: "10.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotals(tt.lines, DefaultPricingPolicy())
			require.NoError(t, err)
			assert.True(t, got.Subtotal.Equal(dec(tt.subtotal)), "subtotal %s", got.Subtotal)
			assert.True(t, got.Tax.Equal(dec(tt.tax)), "tax %s", got.Tax)
			assert.True(t, got.Shipping.Equal(dec(tt.shipping)), "shipping %s", got.Shipping)
			assert.True(t, got.Total.Equal(dec(tt.total)), "total %s", got.Total)
		})
	}
}

func TestComputeTotals_TotalIsSumOfParts(t *testing.T) {
	policy := DefaultPricingPolicy()
	prices := []string{"0.01", "0.99", "9.995", "19.99", "33.333", "49.5", "120"}
	for _, a := range prices {
		for _, b := range prices {
			for q := 1; q <= 4; q++ {
				lines := []PricedLine{{UnitPrice: dec(a), Quantity: q}, {UnitPrice: dec(b), Quantity: 1}}
				got, err := ComputeTotals(lines, policy)
				require.NoError(t, err)

				sub := dec(a).Mul(decimal.NewFromInt(int64(q))).Add(dec(b)).Round(2)
				wantShip := policy.FlatShippingFee
				if sub.GreaterThan(policy.FreeShippingThreshold) {
					wantShip = decimal.Zero
				}
				want := sub.Add(sub.Mul(policy.TaxRate).Round(2)).Add(wantShip)
				assert.True(t, got.Total.Equal(want), "%s x%d + %s: got %s want %s", a, q, b, got.Total, want)
				assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax).Add(got.Shipping)))
				assert.Equal(t, got.Shipping.IsZero(), got.Subtotal.GreaterThan(policy.FreeShippingThreshold))
			}
		}
	}
}

func TestComputeTotals_RejectsBadInput(t *testing.T) {
	_, err := ComputeTotals(nil, DefaultPricingPolicy())
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = ComputeTotals([]PricedLine{{UnitPrice: dec("-1"), Quantity: 1}}, DefaultPricingPolicy())
	assert.ErrorIs(t, err, ErrInvalidLineItem)

	_, err = ComputeTotals([]PricedLine{{UnitPrice: dec("1"), Quantity: 0}}, DefaultPricingPolicy())
	assert.ErrorIs(t, err, ErrInvalidLineItem)
}

func TestPricingPolicy_Validate(t *testing.T) {
	p := DefaultPricingPolicy()
	require.NoError(t, p.Validate())
	p.TaxRate = dec("-0.1")
	assert.Error(t, p.Validate())
}

func TestProduct_EffectivePrice(t *testing.T) {
	pct := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }
	tests := []struct {
		name string
		p    Product
		want string
	}{
		{name: "no discount", p: Product{Price: dec("100")}, want: "100"},
		{name: "flag without percentage", p: Product{Price: dec("100"), Discount: true}, want: "100"},
		{name: "percentage without flag", p: Product{Price: dec("100"), DiscountPercentage: pct("20")}, want: "100"},
		{name: "twenty percent", p: Product{Price: dec("100"), Discount: true, DiscountPercentage: pct("20")}, want: "80"},
		{name: "fractional", p: Product{Price: dec("19.99"), Discount: true, DiscountPercentage: pct("15")}, want: "16.9915"},
		{name: "over a hundred", p: Product{Price: dec("10"), Discount: true, DiscountPercentage: pct("150")}, want: "0"},
		{name: "negative", p: Product{Price: dec("10"), Discount: true, DiscountPercentage: pct("-5")}, want: "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.p.EffectivePrice().Equal(dec(tt.want)), "got %s", tt.p.EffectivePrice())
		})
	}
}
