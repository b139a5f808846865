package orders

import "context"

// Catalog reads committed product state.
type Catalog interface {
	// GetProduct returns *ProductNotFoundError when id is unknown.
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// Ledger moves product stock. Every decrement is conditional on the stock
// present at the moment of the update, never on a value read earlier.
type Ledger interface {
	// Reserve decrements one product and returns its new stock.
	Reserve(ctx context.Context, productID int64, quantity int) (int, error)
	// ReserveAll applies every decrement or none of them.
	ReserveAll(ctx context.Context, reqs []StockRequest) error
	// Release puts stock back, e.g. when an order is cancelled.
	Release(ctx context.Context, reqs []StockRequest) error
}

type OrderStore interface {
	// InsertOrder returns ErrOrderNumberTaken when the number already exists.
	InsertOrder(ctx context.Context, o *Order) (*Order, error)
	GetOrder(ctx context.Context, number string) (*Order, error)
	// GetOrderForUpdate is GetOrder plus a row lock when run inside InTx.
	GetOrderForUpdate(ctx context.Context, number string) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateOrder persists the mutable order fields: statuses, payment
	// reference, tracking number and notes.
	UpdateOrder(ctx context.Context, o *Order) error
}

// Tx is the view of the store bound to one unit of work.
type Tx interface {
	Catalog
	Ledger
	OrderStore
}

// Store runs units of work. When fn returns an error, nothing fn did through
// tx is visible afterwards.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CartClearer is the only contract the service has with the cart.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// EventPublisher ships encoded envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// PaymentGateway starts a payment for a committed order and returns the
// provider reference.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, o *Order) (string, error)
}
