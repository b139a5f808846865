package orders

import (
	"errors"
	"fmt"
)

var (
	ErrMissingUser          = errors.New("user id is required")
	ErrEmptyOrder           = errors.New("order has no line items")
	ErrInvalidLineItem      = errors.New("invalid line item")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrOrderNotFound        = errors.New("order not found")

	// ErrOrderNumberTaken is reported by an OrderStore when the generated
	// number already exists. The service retries once on it.
	ErrOrderNumberTaken = errors.New("order number already taken")
	// ErrOrderNumberCollision means the retry collided as well.
	ErrOrderNumberCollision = errors.New("order number collision after retry")
)

type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Shortfall is how many units are missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() int {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}

type InvalidStatusTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %q to %q", e.From, e.To)
}

type InvalidPaymentTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidPaymentTransitionError) Error() string {
	return fmt.Sprintf("cannot move payment from %q to %q", e.From, e.To)
}

// PersistenceError wraps failures of the underlying store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("persistence: %v", e.Err)
	}
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsUserError reports whether err is something the caller can fix by
// changing the request, as opposed to an internal failure.
func IsUserError(err error) bool {
	var (
		notFound   *ProductNotFoundError
		stock      *InsufficientStockError
		transition *InvalidStatusTransitionError
		payment    *InvalidPaymentTransitionError
	)
	switch {
	case errors.Is(err, ErrMissingUser),
		errors.Is(err, ErrEmptyOrder),
		errors.Is(err, ErrInvalidLineItem),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrInvalidPaymentMethod),
		errors.Is(err, ErrOrderNotFound),
		errors.As(err, &notFound),
		errors.As(err, &stock),
		errors.As(err, &transition),
		errors.As(err, &payment):
		return true
	}
	return false
}
