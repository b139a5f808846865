package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const contentTypeProblem = "application/problem+json"

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail,omitempty"`
	Instance   string         `json:"instance,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

const (
	typeBadRequest      = "/problems/bad-request"
	typeValidation      = "/problems/validation-error"
	typeUnauthorized    = "/problems/unauthorized"
	typeForbidden       = "/problems/forbidden"
	typeNotFound        = "/problems/not-found"
	typeProductNotFound = "/problems/product-not-found"
	typeInsufficient    = "/problems/insufficient-stock"
	typeTransition      = "/problems/invalid-transition"
	typeConflict        = "/problems/conflict"
	typeUnavailable     = "/problems/temporarily-unavailable"
	typeInternal        = "/problems/internal-error"
)

func newProblem(typ, title string, status int, detail string) Problem {
	return Problem{Type: typ, Title: title, Status: status, Detail: detail}
}

func (p Problem) with(key string, v any) Problem {
	if p.Extensions == nil {
		p.Extensions = make(map[string]any)
	}
	p.Extensions[key] = v
	return p
}

// problemFor maps domain errors to problems. Every user-correctable error gets
// its own type and a detail naming what to fix.
func problemFor(err error) (Problem, bool) {
	var (
		productNF  *orders.ProductNotFoundError
		stock      *orders.InsufficientStockError
		transition *orders.InvalidStatusTransitionError
		payment    *orders.InvalidPaymentTransitionError
	)
	switch {
	case errors.Is(err, orders.ErrMissingUser):
		return newProblem(typeUnauthorized, "Missing User", http.StatusUnauthorized,
			"the "+HeaderUserID+" header is required"), true
	case errors.Is(err, orders.ErrEmptyOrder):
		return newProblem(typeValidation, "Empty Order", http.StatusUnprocessableEntity, err.Error()), true
	case errors.Is(err, orders.ErrInvalidLineItem),
		errors.Is(err, orders.ErrInvalidAddress),
		errors.Is(err, orders.ErrInvalidPaymentMethod),
		errors.Is(err, cart.ErrInvalidLine):
		return newProblem(typeValidation, "Validation Error", http.StatusUnprocessableEntity, err.Error()), true
	case errors.As(err, &productNF):
		return newProblem(typeProductNotFound, "Product Not Found", http.StatusNotFound, err.Error()).
			with("product_id", productNF.ProductID), true
	case errors.As(err, &stock):
		return newProblem(typeInsufficient, "Insufficient Stock", http.StatusConflict, err.Error()).
			with("product_id", stock.ProductID).
			with("requested", stock.Requested).
			with("available", stock.Available).
			with("shortfall", stock.Shortfall()), true
	case errors.As(err, &transition):
		return newProblem(typeTransition, "Invalid Status Transition", http.StatusConflict, err.Error()).
			with("from", string(transition.From)).
			with("to", string(transition.To)), true
	case errors.As(err, &payment):
		return newProblem(typeTransition, "Invalid Payment Transition", http.StatusConflict, err.Error()).
			with("from", string(payment.From)).
			with("to", string(payment.To)), true
	case errors.Is(err, orders.ErrOrderNotFound):
		return newProblem(typeNotFound, "Order Not Found", http.StatusNotFound, ""), true
	case errors.Is(err, cart.ErrLineNotFound):
		return newProblem(typeNotFound, "Cart Line Not Found", http.StatusNotFound, ""), true
	case errors.Is(err, orders.ErrOrderNumberCollision):
		return newProblem(typeUnavailable, "Try Again", http.StatusServiceUnavailable,
			"could not allocate an order number, please retry"), true
	}
	return Problem{}, false
}

type responder struct {
	logger *zap.Logger
}

func (rs responder) problem(w http.ResponseWriter, r *http.Request, p Problem) {
	if p.Instance == "" {
		p.Instance = r.URL.Path
	}
	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// fail renders err. Anything unmapped is logged and reported without
// internal detail.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	if p, ok := problemFor(err); ok {
		rs.problem(w, r, p)
		return
	}
	rs.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	rs.problem(w, r, newProblem(typeInternal, "Internal Server Error", http.StatusInternalServerError, ""))
}

func (rs responder) badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	rs.problem(w, r, newProblem(typeBadRequest, "Bad Request", http.StatusBadRequest, detail))
}
