package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

const maxWatchRetries = 5

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each cart in a hash keyed by line key. The whole hash
// expires after ttl of inactivity.
type RedisStore struct {
	rdb   *redis.Client
	ttl   time.Duration
	clock func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = redisx.TTLCart
	}
	return &RedisStore{rdb: rdb, ttl: ttl, clock: time.Now}
}

func cartKey(userID string) string { return fmt.Sprintf(redisx.KeyCart, userID) }

func (s *RedisStore) Items(ctx context.Context, userID string) ([]Line, error) {
	raw, err := s.rdb.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(raw))
	for field, v := range raw {
		var l Line
		if err := json.Unmarshal([]byte(v), &l); err != nil {
			return nil, fmt.Errorf("cart line %s: %w", field, err)
		}
		out = append(out, l)
	}
	sortLines(out)
	return out, nil
}

func (s *RedisStore) Add(ctx context.Context, userID string, line Line) (Line, error) {
	if err := line.validate(); err != nil {
		return Line{}, err
	}
	return s.update(ctx, userID, line.Key(), func(cur *Line) (Line, error) {
		now := s.clock().UTC()
		if cur == nil {
			line.AddedAt, line.UpdatedAt = now, now
			return line, nil
		}
		cur.Quantity += line.Quantity
		cur.UpdatedAt = now
		return *cur, nil
	})
}

func (s *RedisStore) SetQuantity(ctx context.Context, userID, key string, quantity int) (Line, error) {
	if quantity < 1 {
		return Line{}, fmt.Errorf("%w: quantity %d", ErrInvalidLine, quantity)
	}
	return s.update(ctx, userID, key, func(cur *Line) (Line, error) {
		if cur == nil {
			return Line{}, ErrLineNotFound
		}
		cur.Quantity = quantity
		cur.UpdatedAt = s.clock().UTC()
		return *cur, nil
	})
}

// update runs a read-modify-write of one line under WATCH, retrying when
// another writer touched the cart in between.
func (s *RedisStore) update(ctx context.Context, userID, field string, fn func(cur *Line) (Line, error)) (Line, error) {
	key := cartKey(userID)
	var next Line
	txf := func(tx *redis.Tx) error {
		var cur *Line
		v, err := tx.HGet(ctx, key, field).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			cur = &Line{}
			if err := json.Unmarshal([]byte(v), cur); err != nil {
				return err
			}
		}
		next, err = fn(cur)
		if err != nil {
			return err
		}
		b, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, b)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Line{}, err
		}
		return next, nil
	}
	return Line{}, fmt.Errorf("cart: too much contention on %s", key)
}

func (s *RedisStore) Remove(ctx context.Context, userID, key string) error {
	n, err := s.rdb.HDel(ctx, cartKey(userID), key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, cartKey(userID)).Err()
}

// ClearUntil deletes under WATCH, so a line rewritten after it was read is
// left alone.
func (s *RedisStore) ClearUntil(ctx context.Context, userID string, until time.Time) (int, error) {
	key := cartKey(userID)
	var removed int
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		var stale []string
		for field, v := range raw {
			var l Line
			if err := json.Unmarshal([]byte(v), &l); err != nil {
				return fmt.Errorf("cart line %s: %w", field, err)
			}
			if !l.UpdatedAt.After(until) {
				stale = append(stale, field)
			}
		}
		removed = len(stale)
		if removed == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, stale...)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return removed, nil
	}
	return 0, fmt.Errorf("cart: too much contention on %s", key)
}
