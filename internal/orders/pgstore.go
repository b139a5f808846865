package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint, so ReserveAll stays all-or-nothing inside InTx too.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore is the Postgres Store. Stock decrements are conditional updates,
// so concurrent writers serialise on the product row without explicit locks.
type PGStore struct {
	*pgRepo
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pgRepo: &pgRepo{db: pool}, pool: pool}
}

func (s *PGStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return persistenceErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgRepo{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return persistenceErr("commit", err)
	}
	return nil
}

type pgRepo struct{ db dbtx }

const productColumns = `id, name, price::text, discount, discount_percentage::text, stock, image, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p          Product
		price      string
		discountPc *string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Discount, &discountPc, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("product %d price: %w", p.ID, err)
	}
	if discountPc != nil {
		d, err := decimal.NewFromString(*discountPc)
		if err != nil {
			return nil, fmt.Errorf("product %d discount: %w", p.ID, err)
		}
		p.DiscountPercentage = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return &p, nil
}

func (r *pgRepo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, persistenceErr("get product", err)
	}
	return p, nil
}

func (r *pgRepo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, persistenceErr("list products", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, persistenceErr("list products", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("list products", err)
	}
	return out, nil
}

// SaveProduct upserts a catalog row. Catalog management proper lives
// elsewhere; this is for seeding and tests.
func (r *pgRepo) SaveProduct(ctx context.Context, p Product) error {
	var discountPc *string
	if p.DiscountPercentage.Valid {
		s := p.DiscountPercentage.Decimal.String()
		discountPc = &s
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO products(id, name, price, discount, discount_percentage, stock, image)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			discount_percentage = EXCLUDED.discount_percentage,
			stock = EXCLUDED.stock,
			image = EXCLUDED.image,
			updated_at = now()`,
		p.ID, p.Name, p.Price.String(), p.Discount, discountPc, p.Stock, p.Image)
	return persistenceErr("save product", err)
}

func (r *pgRepo) Reserve(ctx context.Context, productID int64, quantity int) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidLineItem
	}
	var stock int
	err := r.db.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, productID, quantity).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, persistenceErr("reserve", err)
	}

	// nothing updated: tell a missing product from a short one
	err = r.db.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return 0, persistenceErr("reserve", err)
	}
	return 0, &InsufficientStockError{ProductID: productID, Requested: quantity, Available: stock}
}

func (r *pgRepo) ReserveAll(ctx context.Context, reqs []StockRequest) error {
	merged, err := mergeStockRequests(reqs)
	if err != nil {
		return err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return persistenceErr("reserve all", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inner := &pgRepo{db: tx}
	for _, req := range merged {
		if _, err := inner.Reserve(ctx, req.ProductID, req.Quantity); err != nil {
			return err // rollback via defer
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return persistenceErr("reserve all", err)
	}
	return nil
}

func (r *pgRepo) Release(ctx context.Context, reqs []StockRequest) error {
	merged, err := mergeStockRequests(reqs)
	if err != nil {
		return err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return persistenceErr("release", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, req := range merged {
		ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`,
			req.ProductID, req.Quantity)
		if err != nil {
			return persistenceErr("release", err)
		}
		if ct.RowsAffected() != 1 {
			return &ProductNotFoundError{ProductID: req.ProductID}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return persistenceErr("release", err)
	}
	return nil
}

func (r *pgRepo) InsertOrder(ctx context.Context, o *Order) (*Order, error) {
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, err
	}
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO orders(number, user_id, subtotal, tax, shipping, total, status, payment_status,
			payment_method, payment_reference, shipping_address, billing_address, tracking_number, notes,
			created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7, $8,
			$9, $10, $11::jsonb, $12::jsonb, $13, $14, $15, $16)`,
		o.Number, o.UserID, o.Subtotal.StringFixed(2), o.Tax.StringFixed(2), o.Shipping.StringFixed(2),
		o.Total.StringFixed(2), string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod),
		o.PaymentReference, string(shipping), string(billing), o.TrackingNumber, o.Notes,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrOrderNumberTaken
		}
		return nil, persistenceErr("insert order", err)
	}

	for i, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items(order_number, position, product_id, name, unit_price, quantity, size, color, image)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`,
			o.Number, i, it.ProductID, it.Name, it.UnitPrice.String(), it.Quantity, it.Size, it.Color, it.Image,
		); err != nil {
			return nil, persistenceErr("insert order item", err)
		}
	}
	return o.Clone(), nil
}

const orderColumns = `number, user_id, subtotal::text, tax::text, shipping::text, total::text, status,
	payment_status, payment_method, payment_reference, shipping_address, billing_address,
	tracking_number, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                          Order
		subtotal, tax, ship, total string
		status, payStatus, method  string
		shipAddr, billAddr         []byte
	)
	if err := row.Scan(&o.Number, &o.UserID, &subtotal, &tax, &ship, &total, &status, &payStatus, &method,
		&o.PaymentReference, &shipAddr, &billAddr, &o.TrackingNumber, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payStatus)
	o.PaymentMethod = PaymentMethod(method)
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o.Subtotal, subtotal}, {&o.Tax, tax}, {&o.Shipping, ship}, {&o.Total, total}} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("order %s amount: %w", o.Number, err)
		}
		*f.dst = d
	}
	if err := json.Unmarshal(shipAddr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("order %s shipping address: %w", o.Number, err)
	}
	if err := json.Unmarshal(billAddr, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("order %s billing address: %w", o.Number, err)
	}
	return &o, nil
}

func (r *pgRepo) getOrder(ctx context.Context, number string, lock bool) (*Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE number=$1`
	if lock {
		q += ` FOR UPDATE`
	}
	o, err := scanOrder(r.db.QueryRow(ctx, q, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, persistenceErr("get order", err)
	}
	items, err := r.loadItems(ctx, []string{number})
	if err != nil {
		return nil, err
	}
	o.Items = items[number]
	return o, nil
}

func (r *pgRepo) GetOrder(ctx context.Context, number string) (*Order, error) {
	return r.getOrder(ctx, number, false)
}

func (r *pgRepo) GetOrderForUpdate(ctx context.Context, number string) (*Order, error) {
	return r.getOrder(ctx, number, true)
}

func (r *pgRepo) ListOrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC, number DESC`, userID)
	if err != nil {
		return nil, persistenceErr("list orders", err)
	}
	defer rows.Close()

	var (
		out     []Order
		numbers []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, persistenceErr("list orders", err)
		}
		out = append(out, *o)
		numbers = append(numbers, o.Number)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("list orders", err)
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	items, err := r.loadItems(ctx, numbers)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].Number]
	}
	return out, nil
}

func (r *pgRepo) loadItems(ctx context.Context, numbers []string) (map[string][]LineItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_number, product_id, name, unit_price::text, quantity, size, color, image
		FROM order_items WHERE order_number = ANY($1)
		ORDER BY order_number, position`, numbers)
	if err != nil {
		return nil, persistenceErr("load order items", err)
	}
	defer rows.Close()

	out := make(map[string][]LineItem, len(numbers))
	for rows.Next() {
		var (
			number, price string
			it            LineItem
		)
		if err := rows.Scan(&number, &it.ProductID, &it.Name, &price, &it.Quantity, &it.Size, &it.Color, &it.Image); err != nil {
			return nil, persistenceErr("load order items", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, persistenceErr("load order items", err)
		}
		out[number] = append(out[number], it)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("load order items", err)
	}
	return out, nil
}

func (r *pgRepo) UpdateOrder(ctx context.Context, o *Order) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, payment_reference=$4, tracking_number=$5,
			notes=$6, updated_at=$7
		WHERE number=$1`,
		o.Number, string(o.Status), string(o.PaymentStatus), o.PaymentReference, o.TrackingNumber,
		o.Notes, o.UpdatedAt)
	if err != nil {
		return persistenceErr("update order", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}
