package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore keeps the catalog and orders in memory. Units of work are
// serialised by a single mutex and rolled back from an undo log.
type MemStore struct {
	mu       sync.Mutex
	products map[int64]*Product
	orders   map[string]*Order
	clock    func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[int64]*Product{},
		orders:   map[string]*Order{},
		clock:    time.Now,
	}
}

// SaveProduct inserts or replaces a catalog entry.
func (m *MemStore) SaveProduct(_ context.Context, p Product) error {
	if p.Stock < 0 {
		return errors.New("memstore: stock must not be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock().UTC()
	if old, ok := m.products[p.ID]; ok {
		p.CreatedAt = old.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.products[p.ID] = &p
	return nil
}

func (m *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{m: m}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *MemStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getProduct(id)
}

func (m *MemStore) ListProducts(ctx context.Context) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listProducts(), nil
}

func (m *MemStore) Reserve(ctx context.Context, productID int64, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserve(productID, quantity, nil)
}

func (m *MemStore) ReserveAll(ctx context.Context, reqs []StockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveAll(reqs, nil)
}

func (m *MemStore) Release(ctx context.Context, reqs []StockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.release(reqs, nil)
}

func (m *MemStore) InsertOrder(ctx context.Context, o *Order) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertOrder(o, nil)
}

func (m *MemStore) GetOrder(ctx context.Context, number string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrder(number)
}

func (m *MemStore) GetOrderForUpdate(ctx context.Context, number string) (*Order, error) {
	return m.GetOrder(ctx, number)
}

func (m *MemStore) ListOrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listOrdersByUser(userID), nil
}

func (m *MemStore) UpdateOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateOrder(o, nil)
}

// The helpers below expect m.mu to be held. A non-nil undo collects the
// inverse of every mutation.

type undoLog []func()

func (u *undoLog) push(f func()) {
	if u != nil {
		*u = append(*u, f)
	}
}

func (m *MemStore) getProduct(id int64) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, &ProductNotFoundError{ProductID: id}
	}
	c := *p
	return &c, nil
}

func (m *MemStore) listProducts() []Product {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) reserve(productID int64, quantity int, undo *undoLog) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidLineItem
	}
	p, ok := m.products[productID]
	if !ok {
		return 0, &ProductNotFoundError{ProductID: productID}
	}
	if p.Stock < quantity {
		return 0, &InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	undo.push(func() { p.Stock += quantity })
	return p.Stock, nil
}

func (m *MemStore) reserveAll(reqs []StockRequest, undo *undoLog) error {
	merged, err := mergeStockRequests(reqs)
	if err != nil {
		return err
	}
	// check everything first so a failure leaves no partial decrement
	for _, r := range merged {
		p, ok := m.products[r.ProductID]
		if !ok {
			return &ProductNotFoundError{ProductID: r.ProductID}
		}
		if p.Stock < r.Quantity {
			return &InsufficientStockError{ProductID: r.ProductID, Requested: r.Quantity, Available: p.Stock}
		}
	}
	for _, r := range merged {
		if _, err := m.reserve(r.ProductID, r.Quantity, undo); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) release(reqs []StockRequest, undo *undoLog) error {
	merged, err := mergeStockRequests(reqs)
	if err != nil {
		return err
	}
	for _, r := range merged {
		if _, ok := m.products[r.ProductID]; !ok {
			return &ProductNotFoundError{ProductID: r.ProductID}
		}
	}
	for _, r := range merged {
		p, qty := m.products[r.ProductID], r.Quantity
		p.Stock += qty
		undo.push(func() { p.Stock -= qty })
	}
	return nil
}

func (m *MemStore) insertOrder(o *Order, undo *undoLog) (*Order, error) {
	if _, ok := m.orders[o.Number]; ok {
		return nil, ErrOrderNumberTaken
	}
	c := o.Clone()
	m.orders[c.Number] = c
	undo.push(func() { delete(m.orders, c.Number) })
	return c.Clone(), nil
}

func (m *MemStore) getOrder(number string) (*Order, error) {
	o, ok := m.orders[number]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (m *MemStore) listOrdersByUser(userID string) []Order {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemStore) updateOrder(o *Order, undo *undoLog) error {
	cur, ok := m.orders[o.Number]
	if !ok {
		return ErrOrderNotFound
	}
	prev := *cur
	cur.Status = o.Status
	cur.PaymentStatus = o.PaymentStatus
	cur.PaymentReference = o.PaymentReference
	cur.TrackingNumber = o.TrackingNumber
	cur.Notes = o.Notes
	cur.UpdatedAt = o.UpdatedAt
	undo.push(func() { *cur = prev })
	return nil
}

type memTx struct {
	m    *MemStore
	undo undoLog
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetProduct(_ context.Context, id int64) (*Product, error) {
	return t.m.getProduct(id)
}

func (t *memTx) ListProducts(_ context.Context) ([]Product, error) {
	return t.m.listProducts(), nil
}

func (t *memTx) Reserve(_ context.Context, productID int64, quantity int) (int, error) {
	return t.m.reserve(productID, quantity, &t.undo)
}

func (t *memTx) ReserveAll(_ context.Context, reqs []StockRequest) error {
	return t.m.reserveAll(reqs, &t.undo)
}

func (t *memTx) Release(_ context.Context, reqs []StockRequest) error {
	return t.m.release(reqs, &t.undo)
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) (*Order, error) {
	return t.m.insertOrder(o, &t.undo)
}

func (t *memTx) GetOrder(_ context.Context, number string) (*Order, error) {
	return t.m.getOrder(number)
}

func (t *memTx) GetOrderForUpdate(_ context.Context, number string) (*Order, error) {
	return t.m.getOrder(number)
}

func (t *memTx) ListOrdersByUser(_ context.Context, userID string) ([]Order, error) {
	return t.m.listOrdersByUser(userID), nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *Order) error {
	return t.m.updateOrder(o, &t.undo)
}

// mergeStockRequests sums duplicate products and orders the result by id so
// every caller locks rows in the same order.
func mergeStockRequests(reqs []StockRequest) ([]StockRequest, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyOrder
	}
	byID := make(map[int64]int, len(reqs))
	for _, r := range reqs {
		if r.Quantity < 1 {
			return nil, ErrInvalidLineItem
		}
		byID[r.ProductID] += r.Quantity
	}
	out := make([]StockRequest, 0, len(byID))
	for id, qty := range byID {
		out = append(out, StockRequest{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
