package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	// placeholder stored under an idempotency key while the first request runs
	idemPending = "pending"

	createTimeout = 10 * time.Second
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req orders.PlaceOrderRequest) (*orders.Order, error)
	GetOrder(ctx context.Context, number string) (*orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, number string, to orders.Status, trackingNumber string) (*orders.Order, error)
	Cancel(ctx context.Context, number string) (*orders.Order, error)
	UpdatePaymentStatus(ctx context.Context, number string, to orders.PaymentStatus) (*orders.Order, error)
}

// OrdersHandler serves the order endpoints. Redis is optional: without it
// Idempotency-Key is ignored and reads are not cached. Status and payment
// updates live under /internal and need OperatorToken; with no token set
// they are refused.
type OrdersHandler struct {
	Orders        OrderService
	Redis         *redis.Client
	Logger        *zap.Logger
	OperatorToken string
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{number}", h.getOrder)
	r.Post("/orders/{number}/cancel", h.cancelOrder)

	r.Route("/internal/orders/{number}", func(r chi.Router) {
		r.Use(requireOperator(h.OperatorToken, h.respond()))
		r.Patch("/status", h.updateStatus)
		r.Patch("/payment", h.updatePayment)
	})
}

func (h *OrdersHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *OrdersHandler) respond() responder { return responder{logger: h.logger()} }

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rs.badRequest(w, r, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), createTimeout)
	defer cancel()

	var idemKey string
	if key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey)); key != "" && h.Redis != nil {
		k := fmt.Sprintf(redisx.KeyIdemOrderCreate, uid, key)
		// the pending claim only has to outlive this request; a crash must
		// not block the key for a day
		claimed, err := redisx.Claim(ctx, h.Redis, k, idemPending, redisx.TTLIdempotencyPending)
		switch {
		case err != nil:
			// Postgres stays the source of truth; go on without the shortcut
			h.logger().Warn("idempotency claim failed", zap.String("user_id", uid), zap.Error(err))
		case !claimed:
			h.replay(ctx, w, r, k)
			return
		default:
			idemKey = k
		}
	}

	o, err := h.Orders.PlaceOrder(ctx, req.toDomain(uid))
	if err != nil {
		if idemKey != "" {
			_ = h.Redis.Del(context.WithoutCancel(ctx), idemKey).Err()
		}
		rs.fail(w, r, err)
		return
	}
	if idemKey != "" {
		if err := h.Redis.Set(context.WithoutCancel(ctx), idemKey, o.Number, redisx.TTLIdempotency).Err(); err != nil {
			h.logger().Warn("idempotency record failed", zap.String("order_number", o.Number), zap.Error(err))
		}
	}

	resp := toOrderResponse(o)
	h.cache(ctx, resp)
	w.Header().Set("Location", "/orders/"+o.Number)
	writeJSON(w, http.StatusCreated, resp)
}

// replay answers a repeated Idempotency-Key with the order the first request
// created.
func (h *OrdersHandler) replay(ctx context.Context, w http.ResponseWriter, r *http.Request, key string) {
	rs := h.respond()
	number, err := h.Redis.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		rs.fail(w, r, err)
		return
	}
	if number == "" || number == idemPending {
		rs.problem(w, r, newProblem(typeConflict, "Request In Progress", http.StatusConflict,
			"a request with this "+headerIdempotencyKey+" is still being processed"))
		return
	}
	o, err := h.Orders.GetOrder(ctx, number)
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	w.Header().Set(headerReplayed, "true")
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListOrders(ctx, userID(r))
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	out := make([]orderSummary, 0, len(list))
	for _, o := range list {
		out = append(out, orderSummary{
			Number:        o.Number,
			Status:        string(o.Status),
			PaymentStatus: string(o.PaymentStatus),
			Total:         o.Total.StringFixed(2),
			Lines:         len(o.Items),
			CreatedAt:     o.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	number := chi.URLParam(r, "number")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if cached, ok := h.cached(ctx, number); ok {
		if cached.UserID != uid {
			rs.fail(w, r, orders.ErrOrderNotFound)
			return
		}
		writeJSON(w, http.StatusOK, cached)
		return
	}

	o, err := h.ownedOrder(ctx, uid, number)
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	resp := toOrderResponse(o)
	h.cache(ctx, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	uid := userID(r)
	if uid == "" {
		rs.fail(w, r, orders.ErrMissingUser)
		return
	}
	number := chi.URLParam(r, "number")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.ownedOrder(ctx, uid, number); err != nil {
		rs.fail(w, r, err)
		return
	}
	o, err := h.Orders.Cancel(ctx, number)
	h.invalidate(ctx, number)
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rs.badRequest(w, r, err.Error())
		return
	}
	to := orders.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if !to.Valid() {
		rs.problem(w, r, newProblem(typeValidation, "Validation Error", http.StatusUnprocessableEntity,
			fmt.Sprintf("unknown order status %q", req.Status)))
		return
	}
	number := chi.URLParam(r, "number")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, number, to, req.TrackingNumber)
	h.invalidate(ctx, number)
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) updatePayment(w http.ResponseWriter, r *http.Request) {
	rs := h.respond()
	var req updatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rs.badRequest(w, r, err.Error())
		return
	}
	to := orders.PaymentStatus(strings.ToLower(strings.TrimSpace(req.PaymentStatus)))
	if !to.Valid() {
		rs.problem(w, r, newProblem(typeValidation, "Validation Error", http.StatusUnprocessableEntity,
			fmt.Sprintf("unknown payment status %q", req.PaymentStatus)))
		return
	}
	number := chi.URLParam(r, "number")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdatePaymentStatus(ctx, number, to)
	h.invalidate(ctx, number)
	if err != nil {
		rs.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ownedOrder hides orders of other users behind ErrOrderNotFound.
func (h *OrdersHandler) ownedOrder(ctx context.Context, uid, number string) (*orders.Order, error) {
	o, err := h.Orders.GetOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != uid {
		return nil, orders.ErrOrderNotFound
	}
	return o, nil
}

func (h *OrdersHandler) cached(ctx context.Context, number string) (orderResponse, bool) {
	if h.Redis == nil {
		return orderResponse{}, false
	}
	b, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrder, number)).Bytes()
	if err != nil {
		return orderResponse{}, false
	}
	var resp orderResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return orderResponse{}, false
	}
	return resp, true
}

func (h *OrdersHandler) cache(ctx context.Context, resp orderResponse) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = h.Redis.Set(context.WithoutCancel(ctx), fmt.Sprintf(redisx.KeyOrder, resp.Number), b, redisx.TTLOrderCache).Err()
}

func (h *OrdersHandler) invalidate(ctx context.Context, number string) {
	if h.Redis == nil {
		return
	}
	if err := h.Redis.Del(context.WithoutCancel(ctx), fmt.Sprintf(redisx.KeyOrder, number)).Err(); err != nil {
		h.logger().Warn("order cache invalidation failed", zap.String("order_number", number), zap.Error(err))
	}
}
