package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type fakeIntents struct {
	params []*stripe.PaymentIntentParams
	err    error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: "pi_123"}, nil
}

func TestStripeGateway_CreatePaymentIntent(t *testing.T) {
	fake := &fakeIntents{}
	gw, err := NewStripeGateway(StripeConfig{Currency: "EUR", intents: fake})
	require.NoError(t, err)

	ref, err := gw.CreatePaymentIntent(context.Background(), &orders.Order{
		Number: "ORD-1-ABC",
		UserID: "u1",
		Total:  decimal.RequireFromString("76.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", ref)

	require.Len(t, fake.params, 1)
	p := fake.params[0]
	assert.Equal(t, int64(7600), *p.Amount)
	assert.Equal(t, "eur", *p.Currency)
	assert.Equal(t, "ORD-1-ABC", p.Metadata["order_number"])
	require.NotNil(t, p.IdempotencyKey)
	assert.Equal(t, "order-ORD-1-ABC", *p.IdempotencyKey)
}

func TestStripeGateway_WrapsProviderError(t *testing.T) {
	boom := errors.New("card_declined")
	gw, err := NewStripeGateway(StripeConfig{intents: &fakeIntents{err: boom}})
	require.NoError(t, err)

	_, err = gw.CreatePaymentIntent(context.Background(), &orders.Order{Number: "n", Total: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, boom)
}

func TestNewStripeGateway_RequiresKey(t *testing.T) {
	_, err := NewStripeGateway(StripeConfig{})
	assert.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "10.5", want: 1050},
		{in: "123.45", want: 12345},
		{in: "1.005", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := MinorUnits(decimal.RequireFromString(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
