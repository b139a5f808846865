// Package payments starts card payments for committed orders.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

var _ orders.PaymentGateway = (*StripeGateway)(nil)

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type StripeConfig struct {
	APIKey   string
	Currency string
	Backends *stripe.Backends
	Logger   *zap.Logger

	// intents overrides the Stripe client in tests.
	intents paymentIntentAPI
}

// StripeGateway creates one PaymentIntent per card order. The order number is
// the idempotency key, so a replayed request never charges twice.
type StripeGateway struct {
	intents  paymentIntentAPI
	currency string
	logger   *zap.Logger
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.intents == nil {
		return nil, errors.New("stripe: api key is required")
	}
	intents := cfg.intents
	if intents == nil {
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeGateway{intents: intents, currency: currency, logger: logger}, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, o *orders.Order) (string, error) {
	if o == nil {
		return "", errors.New("stripe: order is nil")
	}
	amount, err := MinorUnits(o.Total)
	if err != nil {
		return "", err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(g.currency),
		Metadata: map[string]string{
			"order_number": o.Number,
			"user_id":      o.UserID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + o.Number)

	pi, err := g.intents.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create payment intent: %w", err)
	}
	g.logger.Info("payment intent created",
		zap.String("order_number", o.Number),
		zap.String("payment_intent", pi.ID),
		zap.Int64("amount", amount),
	)
	return pi.ID, nil
}

// MinorUnits converts a two-decimal amount to cents.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("stripe: negative amount %s", amount)
	}
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("stripe: amount %s has more than two decimals", amount)
	}
	return cents.IntPart(), nil
}
