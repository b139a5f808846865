package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T, products ...Product) *MemStore {
	t.Helper()
	s := NewMemStore()
	for _, p := range products {
		require.NoError(t, s.SaveProduct(context.Background(), p))
	}
	return s
}

func TestMemStore_Reserve(t *testing.T) {
	s := seededStore(t, Product{ID: 1, Price: dec("1"), Stock: 3})
	ctx := context.Background()

	left, err := s.Reserve(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	_, err = s.Reserve(ctx, 1, 2)
	assert.Equal(t, &InsufficientStockError{ProductID: 1, Requested: 2, Available: 1}, err)

	_, err = s.Reserve(ctx, 7, 1)
	assert.Equal(t, &ProductNotFoundError{ProductID: 7}, err)

	_, err = s.Reserve(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidLineItem)
}

func TestMemStore_ReserveAllIsAllOrNothing(t *testing.T) {
	s := seededStore(t,
		Product{ID: 1, Price: dec("1"), Stock: 5},
		Product{ID: 2, Price: dec("1"), Stock: 1},
	)
	ctx := context.Background()

	err := s.ReserveAll(ctx, []StockRequest{{ProductID: 1, Quantity: 5}, {ProductID: 2, Quantity: 2}})
	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, int64(2), stock.ProductID)

	p, _ := s.GetProduct(ctx, 1)
	assert.Equal(t, 5, p.Stock)

	require.NoError(t, s.ReserveAll(ctx, []StockRequest{{ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 4}}))
	p, _ = s.GetProduct(ctx, 1)
	assert.Equal(t, 1, p.Stock)

	assert.ErrorIs(t, s.ReserveAll(ctx, nil), ErrEmptyOrder)
}

func TestMemStore_Release(t *testing.T) {
	s := seededStore(t, Product{ID: 1, Price: dec("1"), Stock: 0})
	ctx := context.Background()

	require.NoError(t, s.Release(ctx, []StockRequest{{ProductID: 1, Quantity: 2}, {ProductID: 1, Quantity: 1}}))
	p, _ := s.GetProduct(ctx, 1)
	assert.Equal(t, 3, p.Stock)

	var missing *ProductNotFoundError
	assert.ErrorAs(t, s.Release(ctx, []StockRequest{{ProductID: 1, Quantity: 1}, {ProductID: 9, Quantity: 1}}), &missing)
	p, _ = s.GetProduct(ctx, 1)
	assert.Equal(t, 3, p.Stock)
}

func TestMemStore_InTxRollsBackEverything(t *testing.T) {
	s := seededStore(t, Product{ID: 1, Price: dec("1"), Stock: 5})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Reserve(ctx, 1, 2); err != nil {
			return err
		}
		if _, err := tx.InsertOrder(ctx, &Order{Number: "ORD-1", UserID: "u1"}); err != nil {
			return err
		}
		o, err := tx.GetOrderForUpdate(ctx, "ORD-1")
		if err != nil {
			return err
		}
		o.Status = StatusProcessing
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, _ := s.GetProduct(ctx, 1)
	assert.Equal(t, 5, p.Stock)
	_, err = s.GetOrder(ctx, "ORD-1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMemStore_InTxHonoursCancelledContext(t *testing.T) {
	s := NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.InTx(ctx, func(context.Context, Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemStore_OrdersAreCopied(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	in := &Order{Number: "ORD-1", UserID: "u1", Items: []LineItem{{ProductID: 1, Quantity: 1, UnitPrice: dec("3")}}}
	_, err := s.InsertOrder(ctx, in)
	require.NoError(t, err)

	in.Items[0].Quantity = 99
	got, err := s.GetOrder(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Items[0].Quantity)

	got.Items[0].Quantity = 42
	again, _ := s.GetOrder(ctx, "ORD-1")
	assert.Equal(t, 1, again.Items[0].Quantity)

	_, err = s.InsertOrder(ctx, &Order{Number: "ORD-1"})
	assert.ErrorIs(t, err, ErrOrderNumberTaken)
}

func TestMemStore_ConcurrentReserveNeverGoesNegative(t *testing.T) {
	s := seededStore(t, Product{ID: 1, Price: dec("1"), Stock: 50})
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Reserve(context.Background(), 1, 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	p, _ := s.GetProduct(context.Background(), 1)
	assert.Equal(t, 50, ok)
	assert.Equal(t, 0, p.Stock)
}

func TestMergeStockRequests(t *testing.T) {
	got, err := mergeStockRequests([]StockRequest{{ProductID: 3, Quantity: 1}, {ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 4}})
	require.NoError(t, err)
	assert.Equal(t, []StockRequest{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 5}}, got)

	_, err = mergeStockRequests([]StockRequest{{ProductID: 1, Quantity: -1}})
	assert.ErrorIs(t, err, ErrInvalidLineItem)
}

func TestErrorsClassification(t *testing.T) {
	assert.True(t, IsUserError(&InsufficientStockError{ProductID: 1}))
	assert.True(t, IsUserError(&ProductNotFoundError{ProductID: 1}))
	assert.True(t, IsUserError(ErrEmptyOrder))
	assert.False(t, IsUserError(errors.New("x")))

	pe := persistenceErr("insert order", errors.New("conn reset"))
	assert.False(t, IsUserError(pe))
	var target *PersistenceError
	require.ErrorAs(t, pe, &target)
	assert.Equal(t, "insert order", target.Op)
	assert.Same(t, pe, persistenceErr("outer", pe))
	assert.NoError(t, persistenceErr("noop", nil))
}
