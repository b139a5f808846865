package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "github.com/ariefcatur/go-storefront-orders/internal/orders"

	// one retry after the first collision
	maxNumberAttempts = 2

	defaultSideEffectTimeout = 5 * time.Second
)

type LineItemRequest struct {
	ProductID int64
	Quantity  int
	Size      string
	Color     string
}

type PlaceOrderRequest struct {
	UserID          string
	Items           []LineItemRequest
	ShippingAddress Address
	// BillingAddress defaults to ShippingAddress when nil.
	BillingAddress *Address
	// PaymentMethod defaults to cash on delivery when empty.
	PaymentMethod PaymentMethod
	Notes         string
}

// ServiceDeps bundles the collaborators of the order service. Store is
// required; everything else has a safe default.
type ServiceDeps struct {
	Store    Store
	Cart     CartClearer
	Events   EventPublisher
	Payments PaymentGateway
	Numbers  NumberGenerator
	Pricing  *PricingPolicy
	Logger   *zap.Logger
	Tracer   trace.Tracer
	Clock    func() time.Time
	// Producer names this service in event envelopes.
	Producer string
	// SideEffectTimeout bounds the post-commit work of PlaceOrder.
	SideEffectTimeout time.Duration
}

// Service places orders and drives them through their lifecycle.
type Service struct {
	store             Store
	cart              CartClearer
	events            EventPublisher
	payments          PaymentGateway
	numbers           NumberGenerator
	pricing           PricingPolicy
	logger            *zap.Logger
	tracer            trace.Tracer
	clock             func() time.Time
	producer          string
	sideEffectTimeout time.Duration
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: store is required")
	}
	pricing := DefaultPricingPolicy()
	if deps.Pricing != nil {
		pricing = *deps.Pricing
	}
	if err := pricing.Validate(); err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	s := &Service{
		store:             deps.Store,
		cart:              deps.Cart,
		events:            deps.Events,
		payments:          deps.Payments,
		numbers:           deps.Numbers,
		pricing:           pricing,
		logger:            deps.Logger,
		tracer:            deps.Tracer,
		clock:             deps.Clock,
		producer:          deps.Producer,
		sideEffectTimeout: deps.SideEffectTimeout,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.numbers == nil {
		s.numbers = NewULIDNumbers(s.clock)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.producer == "" {
		s.producer = "order-api"
	}
	if s.sideEffectTimeout <= 0 {
		s.sideEffectTimeout = defaultSideEffectTimeout
	}
	return s, nil
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// PlaceOrder validates the request, then in a single unit of work prices the
// lines from current catalog data, reserves stock for all of them and
// inserts the order. Cart clearing, payment start and event publishing
// follow the commit and never undo it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer span.End()

	if err := s.validate(&req); err != nil {
		return nil, s.spanErr(span, err)
	}

	var placed *Order
	for attempt := 1; ; attempt++ {
		number := s.numbers.Generate()
		err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			o, err := s.placeInTx(ctx, tx, number, req)
			if err != nil {
				return err
			}
			placed = o
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrOrderNumberTaken) {
			if attempt < maxNumberAttempts {
				s.logger.Warn("order number collision, retrying",
					zap.String("order_number", number), zap.String("user_id", req.UserID))
				continue
			}
			return nil, s.spanErr(span, fmt.Errorf("%w: %s", ErrOrderNumberCollision, number))
		}
		return nil, s.spanErr(span, err)
	}

	span.SetAttributes(attribute.String("order.number", placed.Number))
	s.logger.Info("order placed",
		zap.String("order_number", placed.Number),
		zap.String("user_id", placed.UserID),
		zap.String("total", placed.Total.StringFixed(2)),
		zap.Int("lines", len(placed.Items)),
	)
	s.afterPlaced(ctx, placed)
	return placed, nil
}

func (s *Service) validate(req *PlaceOrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return ErrMissingUser
	}
	if len(req.Items) == 0 {
		return ErrEmptyOrder
	}
	for i, it := range req.Items {
		if it.ProductID <= 0 {
			return fmt.Errorf("%w: line %d has product id %d", ErrInvalidLineItem, i, it.ProductID)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: line %d has quantity %d", ErrInvalidLineItem, i, it.Quantity)
		}
	}
	if err := validateAddress("shipping", req.ShippingAddress); err != nil {
		return err
	}
	if req.BillingAddress != nil && !req.BillingAddress.IsZero() {
		if err := validateAddress("billing", *req.BillingAddress); err != nil {
			return err
		}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = PaymentCOD
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	if req.PaymentMethod == PaymentCard && s.payments == nil {
		return fmt.Errorf("%w: card payments are not available", ErrInvalidPaymentMethod)
	}
	return nil
}

func validateAddress(kind string, a Address) error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"full_name", a.FullName},
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s address missing %s", ErrInvalidAddress, kind, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) placeInTx(ctx context.Context, tx Tx, number string, req PlaceOrderRequest) (*Order, error) {
	products := make(map[int64]*Product, len(req.Items))
	items := make([]LineItem, 0, len(req.Items))
	priced := make([]PricedLine, 0, len(req.Items))
	stock := make([]StockRequest, 0, len(req.Items))
	for _, it := range req.Items {
		p, ok := products[it.ProductID]
		if !ok {
			var err error
			if p, err = tx.GetProduct(ctx, it.ProductID); err != nil {
				return nil, err
			}
			products[it.ProductID] = p
		}
		price := p.EffectivePrice()
		items = append(items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: price,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
			Image:     p.Image,
		})
		priced = append(priced, PricedLine{UnitPrice: price, Quantity: it.Quantity})
		stock = append(stock, StockRequest{ProductID: p.ID, Quantity: it.Quantity})
	}

	totals, err := ComputeTotals(priced, s.pricing)
	if err != nil {
		return nil, err
	}
	if err := tx.ReserveAll(ctx, stock); err != nil {
		return nil, err
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil && !req.BillingAddress.IsZero() {
		billing = *req.BillingAddress
	}
	now := s.now()
	return tx.InsertOrder(ctx, &Order{
		Number:          number,
		UserID:          req.UserID,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		Notes:           strings.TrimSpace(req.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// afterPlaced runs the best-effort side effects of a committed order. The
// caller going away must not stop them, so the request context only lends
// its values.
func (s *Service) afterPlaced(ctx context.Context, o *Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()

	if o.PaymentMethod == PaymentCard && s.payments != nil {
		s.startPayment(ctx, o)
	}
	if s.cart != nil {
		if err := s.cart.Clear(ctx, o.UserID); err != nil {
			s.logger.Warn("cart clear failed after order commit",
				zap.String("order_number", o.Number), zap.String("user_id", o.UserID), zap.Error(err))
		}
	}
	s.publish(ctx, TopicOrderPlaced, EventOrderPlaced, o, orderPlacedPayload(o))
}

func (s *Service) startPayment(ctx context.Context, o *Order) {
	ref, err := s.payments.CreatePaymentIntent(ctx, o)
	if err != nil {
		s.logger.Warn("payment intent creation failed",
			zap.String("order_number", o.Number), zap.String("user_id", o.UserID), zap.Error(err))
		return
	}
	o.PaymentReference = ref
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetOrderForUpdate(ctx, o.Number)
		if err != nil {
			return err
		}
		cur.PaymentReference = ref
		cur.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, cur)
	})
	if err != nil {
		s.logger.Warn("payment reference not stored",
			zap.String("order_number", o.Number), zap.String("payment_reference", ref), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, topic, eventType string, o *Order, payload any) {
	if s.events == nil {
		return
	}
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	value, err := newEnvelope(eventType, s.producer, traceID, o.Number, payload, s.now())
	if err != nil {
		s.logger.Error("encode event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, topic, PartitionKey(o.Number), value); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event_type", eventType), zap.String("order_number", o.Number), zap.Error(err))
	}
}

// UpdateStatus moves an order along its state machine. Moving to cancelled
// is a Cancel, which also restores stock.
func (s *Service) UpdateStatus(ctx context.Context, number string, to Status, trackingNumber string) (*Order, error) {
	if to == StatusCancelled {
		return s.Cancel(ctx, number)
	}
	ctx, span := s.tracer.Start(ctx, "orders.UpdateStatus", trace.WithAttributes(
		attribute.String("order.number", number), attribute.String("order.status.to", string(to))))
	defer span.End()

	var (
		updated *Order
		from    Status
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, number)
		if err != nil {
			return err
		}
		from = o.Status
		if !CanTransition(o.Status, to) {
			return &InvalidStatusTransitionError{From: o.Status, To: to}
		}
		o.Status = to
		if tn := strings.TrimSpace(trackingNumber); tn != "" {
			o.TrackingNumber = tn
		}
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.spanErr(span, err)
	}
	s.statusChanged(ctx, updated, from)
	return updated, nil
}

// Cancel marks a pending or processing order cancelled and returns its
// stock to the ledger in the same unit of work.
func (s *Service) Cancel(ctx context.Context, number string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.Cancel", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	var (
		updated *Order
		from    Status
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, number)
		if err != nil {
			return err
		}
		from = o.Status
		if !CanTransition(o.Status, StatusCancelled) {
			return &InvalidStatusTransitionError{From: o.Status, To: StatusCancelled}
		}
		if err := tx.Release(ctx, o.stockRequests()); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.spanErr(span, err)
	}
	s.logger.Info("order cancelled", zap.String("order_number", number), zap.String("from", string(from)))
	s.statusChanged(ctx, updated, from)
	return updated, nil
}

func (s *Service) statusChanged(ctx context.Context, o *Order, from Status) {
	s.publish(context.WithoutCancel(ctx), TopicOrderStatusChanged, EventOrderStatusChanged, o, OrderStatusChangedPayload{
		OrderNumber:   o.Number,
		UserID:        o.UserID,
		From:          string(from),
		To:            string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
	})
}

// UpdatePaymentStatus records the outcome reported by the payment provider.
func (s *Service) UpdatePaymentStatus(ctx context.Context, number string, to PaymentStatus) (*Order, error) {
	var updated *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, number)
		if err != nil {
			return err
		}
		if !CanTransitionPayment(o.PaymentStatus, to) {
			return &InvalidPaymentTransitionError{From: o.PaymentStatus, To: to}
		}
		o.PaymentStatus = to
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment status updated", zap.String("order_number", number), zap.String("payment_status", string(to)))
	return updated, nil
}

func (s *Service) GetOrder(ctx context.Context, number string) (*Order, error) {
	return s.store.GetOrder(ctx, number)
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	return s.store.ListOrdersByUser(ctx, userID)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) spanErr(span trace.Span, err error) error {
	if !IsUserError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("order.rejected", err.Error()))
	}
	return err
}
