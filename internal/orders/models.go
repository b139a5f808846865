package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Product struct {
	ID                 int64
	Name               string
	Price              decimal.Decimal
	Discount           bool
	DiscountPercentage decimal.NullDecimal
	Stock              int
	Image              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EffectivePrice is the unit price an order captures for this product.
// It is the only place the discount rule is applied.
func (p Product) EffectivePrice() decimal.Decimal {
	if !p.Discount || !p.DiscountPercentage.Valid {
		return p.Price
	}
	pct := p.DiscountPercentage.Decimal
	if pct.LessThanOrEqual(decimal.Zero) {
		return p.Price
	}
	if pct.GreaterThanOrEqual(hundred) {
		return decimal.Zero
	}
	return p.Price.Mul(decimal.NewFromInt(1).Sub(pct.Div(hundred)))
}

type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) IsZero() bool { return a == Address{} }

// LineItem is an order line with the product name and price captured at
// placement time. Later catalog changes never touch it.
type LineItem struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Size      string
	Color     string
	Image     string
}

func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCOD  PaymentMethod = "cod" // cash on delivery
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCOD
}

type Order struct {
	Number           string
	UserID           string
	Items            []LineItem
	Subtotal         decimal.Decimal
	Tax              decimal.Decimal
	Shipping         decimal.Decimal
	Total            decimal.Decimal
	Status           Status
	PaymentStatus    PaymentStatus
	PaymentMethod    PaymentMethod
	PaymentReference string
	ShippingAddress  Address
	BillingAddress   Address
	TrackingNumber   string
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a copy that shares no slices with o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	return &c
}

func (o *Order) stockRequests() []StockRequest {
	out := make([]StockRequest, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, StockRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// StockRequest asks the ledger to move Quantity units of one product.
type StockRequest struct {
	ProductID int64
	Quantity  int
}
