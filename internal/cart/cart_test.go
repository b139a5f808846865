package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestStore_AddMergesSameVariant(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 2, Size: "M"})
			require.NoError(t, err)
			got, err := s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 3, Size: "M"})
			require.NoError(t, err)
			assert.Equal(t, 5, got.Quantity)

			_, err = s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 1, Size: "L"})
			require.NoError(t, err)

			items, err := s.Items(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, items, 2)
		})
	}
}

func TestStore_RejectsInvalidLines(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 0})
			assert.ErrorIs(t, err, ErrInvalidLine)
			_, err = s.Add(ctx, "u1", Line{ProductID: 0, Quantity: 1})
			assert.ErrorIs(t, err, ErrInvalidLine)
		})
	}
}

func TestStore_SetQuantityAndRemove(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l, err := s.Add(ctx, "u1", Line{ProductID: 7, Quantity: 1, Color: "red"})
			require.NoError(t, err)

			got, err := s.SetQuantity(ctx, "u1", l.Key(), 4)
			require.NoError(t, err)
			assert.Equal(t, 4, got.Quantity)

			_, err = s.SetQuantity(ctx, "u1", "99::", 1)
			assert.ErrorIs(t, err, ErrLineNotFound)
			_, err = s.SetQuantity(ctx, "u1", l.Key(), 0)
			assert.ErrorIs(t, err, ErrInvalidLine)

			require.NoError(t, s.Remove(ctx, "u1", l.Key()))
			assert.ErrorIs(t, s.Remove(ctx, "u1", l.Key()), ErrLineNotFound)
		})
	}
}

func TestStore_ClearIsPerUser(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 1})
			require.NoError(t, err)
			_, err = s.Add(ctx, "u2", Line{ProductID: 1, Quantity: 1})
			require.NoError(t, err)

			require.NoError(t, s.Clear(ctx, "u1"))
			require.NoError(t, s.Clear(ctx, "nobody"))

			items, err := s.Items(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, items)
			items, err = s.Items(ctx, "u2")
			require.NoError(t, err)
			assert.Len(t, items, 1)
		})
	}
}

func TestRedisStore_RefreshesTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	_, err := s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("cart:u1"))

	mr.FastForward(59 * time.Minute)
	_, err = s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("cart:u1"))

	mr.FastForward(2 * time.Hour)
	items, err := s.Items(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_ClearUntilKeepsNewerLines(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	mem := NewMemoryStore()
	mem.clock = clock
	rs, _ := newRedisStore(t)
	rs.clock = clock

	for name, s := range map[string]Store{"memory": mem, "redis": rs} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now = base
			_, err := s.Add(ctx, "u1", Line{ProductID: 1, Quantity: 1})
			require.NoError(t, err)
			_, err = s.Add(ctx, "u1", Line{ProductID: 2, Quantity: 1})
			require.NoError(t, err)

			cutoff := base.Add(time.Second)
			now = base.Add(time.Minute)
			_, err = s.Add(ctx, "u1", Line{ProductID: 3, Quantity: 1})
			require.NoError(t, err)
			// touching an old line after the cutoff keeps it too
			_, err = s.Add(ctx, "u1", Line{ProductID: 2, Quantity: 1})
			require.NoError(t, err)

			n, err := s.ClearUntil(ctx, "u1", cutoff)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			items, err := s.Items(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, int64(2), items[0].ProductID)
			assert.Equal(t, 2, items[0].Quantity)
			assert.Equal(t, int64(3), items[1].ProductID)

			n, err = s.ClearUntil(ctx, "nobody", cutoff)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}
