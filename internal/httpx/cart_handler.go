package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type CartHandler struct {
	Cart    cart.Store
	Catalog orders.Catalog
	Logger  *zap.Logger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.getCart)
	r.Post("/cart", h.addItem)
	r.Delete("/cart", h.clearCart)
	r.Put("/cart/items/{key}", h.setQuantity)
	r.Delete("/cart/items/{key}", h.removeItem)
}

type cartLineRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartLineResponse struct {
	Key       string `json:"key"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Name      string `json:"name,omitempty"`
	UnitPrice string `json:"unit_price,omitempty"`
	Amount    string `json:"amount,omitempty"`
	// Available is false once the product left the catalog or lacks stock.
	Available bool `json:"available"`
}

// cartResponse prices lines at current catalog prices. The order captures
// its own prices at placement.
type cartResponse struct {
	Items    []cartLineResponse `json:"items"`
	Subtotal string             `json:"subtotal"`
}

func (h *CartHandler) respond() responder {
	if h.Logger == nil {
		return responder{logger: zap.NewNop()}
	}
	return responder{logger: h.Logger}
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp, err := h.view(ctx, uid)
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CartHandler) view(ctx context.Context, uid string) (cartResponse, error) {
	lines, err := h.Cart.Items(ctx, uid)
	if err != nil {
		return cartResponse{}, err
	}
	subtotal := decimal.Zero
	out := make([]cartLineResponse, 0, len(lines))
	for _, l := range lines {
		item := cartLineResponse{
			Key:       l.Key(),
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Size:      l.Size,
			Color:     l.Color,
		}
		p, err := h.Catalog.GetProduct(ctx, l.ProductID)
		var notFound *orders.ProductNotFoundError
		switch {
		case errors.As(err, &notFound):
		case err != nil:
			return cartResponse{}, err
		default:
			price := p.EffectivePrice()
			amount := price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			item.Name = p.Name
			item.UnitPrice = price.StringFixed(2)
			item.Amount = amount.StringFixed(2)
			item.Available = p.Stock >= l.Quantity
			subtotal = subtotal.Add(amount)
		}
		out = append(out, item)
	}
	return cartResponse{Items: out, Subtotal: subtotal.StringFixed(2)}, nil
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	var req cartLineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rs.badRequest(w, r, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if req.ProductID > 0 {
		if _, err := h.Catalog.GetProduct(ctx, req.ProductID); err != nil {
			rs.fail(w, r, err)
			return
		}
	}
	line, err := h.Cart.Add(ctx, uid, cart.Line{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Size:      req.Size,
		Color:     req.Color,
	})
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartLineResponse{
		Key:       line.Key(),
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Size:      line.Size,
		Color:     line.Color,
		Available: true,
	})
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	var req cartQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rs.badRequest(w, r, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.Cart.SetQuantity(ctx, uid, chi.URLParam(r, "key"), req.Quantity); err != nil {
		rs.fail(w, r, err)
		return
	}
	resp, err := h.view(ctx, uid)
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	if err := h.Cart.Remove(r.Context(), uid, chi.URLParam(r, "key")); err != nil {
		rs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	if err := h.Cart.Clear(r.Context(), uid); err != nil {
		rs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
