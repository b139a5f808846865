// Package sweeper clears the cart of users whose order has been placed. It
// backs up the best-effort clear done by the order API and only removes
// lines that were already in the cart when the order was placed.
package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

const dedupScope = "cart-sweeper"

// CartPruner drops the lines of a cart last written at or before until.
type CartPruner interface {
	ClearUntil(ctx context.Context, userID string, until time.Time) (int, error)
}

type Service struct {
	Cart   CartPruner
	Redis  *redis.Client
	Logger *zap.Logger
}

// HandleOrderPlaced is installed as the consumer handler for order.placed.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// a malformed message will never decode; dropping it is the only option
		s.logger().Error("undecodable envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		s.logger().Error("undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if p.UserID == "" {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, dedupScope, env.EventID)
	claimed, err := redisx.Claim(ctx, s.Redis, dkey, p.OrderNumber, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !claimed {
		return nil
	}

	until := p.PlacedAt
	if until.IsZero() {
		until = env.OccurredAt
	}
	removed, err := s.Cart.ClearUntil(ctx, p.UserID, until)
	if err != nil {
		// release the claim so the retry is not mistaken for a duplicate
		if delErr := s.Redis.Del(context.WithoutCancel(ctx), dkey).Err(); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return fmt.Errorf("clear cart of %s: %w", p.UserID, err)
	}
	s.logger().Info("cart swept",
		zap.String("order_number", p.OrderNumber),
		zap.String("user_id", p.UserID),
		zap.Int("lines_removed", removed),
	)
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
