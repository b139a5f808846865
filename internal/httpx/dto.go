package httpx

import (
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// Money fields are fixed two-decimal strings.
type lineItemResponse struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Image     string `json:"image,omitempty"`
	Amount    string `json:"amount"`
}

type orderResponse struct {
	Number           string             `json:"number"`
	UserID           string             `json:"user_id"`
	Status           string             `json:"status"`
	PaymentStatus    string             `json:"payment_status"`
	PaymentMethod    string             `json:"payment_method"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	Items            []lineItemResponse `json:"items"`
	Subtotal         string             `json:"subtotal"`
	Tax              string             `json:"tax"`
	Shipping         string             `json:"shipping"`
	Total            string             `json:"total"`
	ShippingAddress  orders.Address     `json:"shipping_address"`
	BillingAddress   orders.Address     `json:"billing_address"`
	TrackingNumber   string             `json:"tracking_number,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func toOrderResponse(o *orders.Order) orderResponse {
	items := make([]lineItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
			Image:     it.Image,
			Amount:    it.Amount().StringFixed(2),
		})
	}
	return orderResponse{
		Number:           o.Number,
		UserID:           o.UserID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentMethod:    string(o.PaymentMethod),
		PaymentReference: o.PaymentReference,
		Items:            items,
		Subtotal:         o.Subtotal.StringFixed(2),
		Tax:              o.Tax.StringFixed(2),
		Shipping:         o.Shipping.StringFixed(2),
		Total:            o.Total.StringFixed(2),
		ShippingAddress:  o.ShippingAddress,
		BillingAddress:   o.BillingAddress,
		TrackingNumber:   o.TrackingNumber,
		Notes:            o.Notes,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

type orderSummary struct {
	Number        string    `json:"number"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Total         string    `json:"total"`
	Lines         int       `json:"lines"`
	CreatedAt     time.Time `json:"created_at"`
}

type productResponse struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Price              string  `json:"price"`
	EffectivePrice     string  `json:"effective_price"`
	Discount           bool    `json:"discount"`
	DiscountPercentage *string `json:"discount_percentage,omitempty"`
	Stock              int     `json:"stock"`
	Image              string  `json:"image,omitempty"`
}

func toProductResponse(p orders.Product) productResponse {
	out := productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price.StringFixed(2),
		EffectivePrice: p.EffectivePrice().StringFixed(2),
		Discount:       p.Discount,
		Stock:          p.Stock,
		Image:          p.Image,
	}
	if p.DiscountPercentage.Valid {
		pct := p.DiscountPercentage.Decimal.String()
		out.DiscountPercentage = &pct
	}
	return out
}

type lineItemRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type placeOrderRequest struct {
	Items           []lineItemRequest `json:"items"`
	ShippingAddress orders.Address    `json:"shipping_address"`
	BillingAddress  *orders.Address   `json:"billing_address"`
	PaymentMethod   string            `json:"payment_method"`
	Notes           string            `json:"notes"`
}

func (req placeOrderRequest) toDomain(userID string) orders.PlaceOrderRequest {
	items := make([]orders.LineItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.LineItemRequest{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
		})
	}
	return orders.PlaceOrderRequest{
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   orders.PaymentMethod(req.PaymentMethod),
		Notes:           req.Notes,
	}
}

type updateStatusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"payment_status"`
}
