//go:build integration

package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
)

func init() { checkLeaks = false }

func setupPostgres(t *testing.T) *PGStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("orders_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	// running it twice must be harmless
	require.NoError(t, postgres.Migrate(ctx, pool))

	return NewPGStore(pool)
}

func pgService(t *testing.T, store *PGStore, deps ServiceDeps) *Service {
	t.Helper()
	deps.Store = store
	svc, err := NewService(deps)
	require.NoError(t, err)
	return svc
}

func pgStock(t *testing.T, s *PGStore, id int64) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestPGStore_PlaceOrderRoundTrip(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 1, Name: "P1", Price: dec("20.00"), Stock: 5, Image: "p1.png"}))

	svc := pgService(t, store, ServiceDeps{})
	req := order("u1", LineItemRequest{ProductID: 1, Quantity: 2, Size: "M", Color: "blue"}, line(1, 1))
	req.Notes = "leave at the door"
	o, err := svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(dec("76.00")))

	got, err := svc.GetOrder(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.True(t, got.Subtotal.Equal(dec("60.00")))
	assert.True(t, got.Total.Equal(dec("76.00")))
	assert.Equal(t, testAddress, got.ShippingAddress)
	assert.Equal(t, testAddress, got.BillingAddress)
	assert.Equal(t, "leave at the door", got.Notes)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "M", got.Items[0].Size)
	assert.Equal(t, "blue", got.Items[0].Color)
	assert.Equal(t, "p1.png", got.Items[0].Image)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, 1, got.Items[1].Quantity)
	assert.Equal(t, 2, pgStock(t, store, 1))

	list, err := svc.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Items, 2)
}

func TestPGStore_NoOversell(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	const stock, qty, callers = 10, 3, 12
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 1, Name: "hot", Price: dec("1"), Stock: stock}))
	svc := pgService(t, store, ServiceDeps{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		other     []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, order("u", line(1, qty)))
			mu.Lock()
			defer mu.Unlock()
			var insufficient *InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &insufficient):
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, stock/qty, succeeded)
	assert.Equal(t, stock-(stock/qty)*qty, pgStock(t, store, 1))
}

func TestPGStore_AtomicMultiLineFailure(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 1, Name: "a", Price: dec("1"), Stock: 10}))
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 2, Name: "b", Price: dec("1"), Stock: 1}))
	svc := pgService(t, store, ServiceDeps{})

	_, err := svc.PlaceOrder(ctx, order("u1", line(1, 4), line(2, 2)))
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, &InsufficientStockError{ProductID: 2, Requested: 2, Available: 1}, insufficient)

	assert.Equal(t, 10, pgStock(t, store, 1))
	assert.Equal(t, 1, pgStock(t, store, 2))
	list, err := svc.ListOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPGStore_NumberCollision(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 1, Name: "a", Price: dec("1"), Stock: 10}))

	svc := pgService(t, store, ServiceDeps{Numbers: sequence("ORD-A", "ORD-A", "ORD-B", "ORD-A", "ORD-B")})
	first, err := svc.PlaceOrder(ctx, order("u1", line(1, 1)))
	require.NoError(t, err)
	second, err := svc.PlaceOrder(ctx, order("u1", line(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, "ORD-A", first.Number)
	assert.Equal(t, "ORD-B", second.Number)

	_, err = svc.PlaceOrder(ctx, order("u1", line(1, 1)))
	require.ErrorIs(t, err, ErrOrderNumberCollision)
	assert.Equal(t, 8, pgStock(t, store, 1))
}

func TestPGStore_CancelRestoresStock(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 1, Name: "a", Price: dec("1"), Stock: 3}))
	svc := pgService(t, store, ServiceDeps{})

	o, err := svc.PlaceOrder(ctx, order("u1", line(1, 3)))
	require.NoError(t, err)
	assert.Equal(t, 0, pgStock(t, store, 1))

	got, err := svc.Cancel(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 3, pgStock(t, store, 1))

	_, err = svc.UpdatePaymentStatus(ctx, o.Number, PaymentFailed)
	require.NoError(t, err)
	stored, err := svc.GetOrder(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, stored.PaymentStatus)
}

func TestPGStore_PriceSnapshot(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 1, Name: "Lamp", Price: dec("100"), Stock: 2}))
	svc := pgService(t, store, ServiceDeps{})

	o, err := svc.PlaceOrder(ctx, order("u1", line(1, 1)))
	require.NoError(t, err)
	require.NoError(t, store.SaveProduct(ctx, Product{ID: 1, Name: "Lamp", Price: dec("50"), Stock: 1}))

	got, err := svc.GetOrder(ctx, o.Number)
	require.NoError(t, err)
	assert.True(t, got.Items[0].UnitPrice.Equal(dec("100")))
}

