package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the five fulfillment states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

// Payment methods are opaque labels. Card and stripe are captured by the
// external gateway before the order is placed; any other method settles
// outside it and starts pending.
const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodStripe PaymentMethod = "stripe"
	PaymentMethodCOD    PaymentMethod = "cod"
)

// UsesGateway reports whether the method settles through the external payment gateway.
func (m PaymentMethod) UsesGateway() bool {
	return m == PaymentMethodCard || m == PaymentMethodStripe
}

type ShippingInfo struct {
	FullName   string `json:"full_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (s ShippingInfo) IsZero() bool {
	return s == ShippingInfo{}
}

// Value encodes s as JSON text for a jsonb column.
func (s ShippingInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *ShippingInfo) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = ShippingInfo{}
		return nil
	}
	return errors.New("shipping info: unsupported column type")
}

type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	SellerID    string          `json:"seller_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
}

// Amount is unitPrice × quantity.
func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Suborder struct {
	ID              string          `json:"id"`
	SellerID        string          `json:"seller_id"`
	SellerName      string          `json:"seller_name,omitempty"`
	ShopName        string          `json:"shop_name,omitempty"`
	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Status          OrderStatus     `json:"status"`
	StatusUpdatedAt time.Time       `json:"status_updated_at"`
}

type Order struct {
	ID                 string          `json:"id"`
	BuyerID            string          `json:"buyer_id"`
	Buyer              *AccountSummary `json:"buyer,omitempty"`
	LineItems          []LineItem      `json:"items"`
	Suborders          []Suborder      `json:"suborders"`
	ShippingInfo       ShippingInfo    `json:"shipping_info"`
	DeliveryMethod     string          `json:"delivery_method"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	ShippingCost       decimal.Decimal `json:"shipping"`
	Tax                decimal.Decimal `json:"tax"`
	Total              decimal.Decimal `json:"total"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	Status             OrderStatus     `json:"status"`
	ExternalPaymentRef string          `json:"external_payment_ref,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	StatusUpdatedAt    time.Time       `json:"status_updated_at"`
}

// Suborder returns a pointer into o.Suborders, or nil when id is unknown.
func (o *Order) Suborder(id string) *Suborder {
	for i := range o.Suborders {
		if o.Suborders[i].ID == id {
			return &o.Suborders[i]
		}
	}
	return nil
}

// SuborderFor returns the suborder owned by sellerID, or nil.
func (o *Order) SuborderFor(sellerID string) *Suborder {
	for i := range o.Suborders {
		if o.Suborders[i].SellerID == sellerID {
			return &o.Suborders[i]
		}
	}
	return nil
}

// GroupBySeller splits items into one pending suborder per distinct seller,
// in first-seen seller order. Suborder ids are assigned by newID.
func GroupBySeller(items []LineItem, newID func() string, now time.Time) []Suborder {
	index := make(map[string]int)
	var suborders []Suborder

	for _, item := range items {
		i, ok := index[item.SellerID]
		if !ok {
			i = len(suborders)
			index[item.SellerID] = i
			suborders = append(suborders, Suborder{
				ID:              newID(),
				SellerID:        item.SellerID,
				Subtotal:        decimal.Zero,
				Status:          OrderStatusPending,
				StatusUpdatedAt: now,
			})
		}
		suborders[i].Items = append(suborders[i].Items, item)
		suborders[i].Subtotal = suborders[i].Subtotal.Add(item.Amount())
	}

	return suborders
}

// SetSuborderStatus writes status to the suborder and recomputes the order's
// aggregate status. Delivered cash orders are marked paid.
func (o *Order) SetSuborderStatus(suborderID string, status OrderStatus, now time.Time) error {
	sub := o.Suborder(suborderID)
	if sub == nil {
		return ErrSuborderNotFound
	}

	sub.Status = status
	sub.StatusUpdatedAt = now

	statuses := make([]OrderStatus, len(o.Suborders))
	for i, s := range o.Suborders {
		statuses[i] = s.Status
	}

	o.Status = AggregateStatus(statuses)
	if o.Status == OrderStatusDelivered && !o.PaymentMethod.UsesGateway() {
		o.PaymentStatus = PaymentStatusPaid
	}
	o.StatusUpdatedAt = now
	o.UpdatedAt = now

	return nil
}

// SellerSuborder is one seller's slice of an order, flattened with the
// order-level context a seller needs to fulfil it.
type SellerSuborder struct {
	OrderID        string          `json:"order_id"`
	SuborderID     string          `json:"suborder_id"`
	Buyer          *AccountSummary `json:"buyer,omitempty"`
	ShippingInfo   ShippingInfo    `json:"shipping_info"`
	DeliveryMethod string          `json:"delivery_method"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	OrderStatus    OrderStatus     `json:"order_status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Suborder       Suborder        `json:"suborder"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type SellerStats struct {
	TotalOrders int `json:"total_orders"`
	Pending     int `json:"pending"`
	Processing  int `json:"processing"`
	Shipped     int `json:"shipped"`
	Delivered   int `json:"delivered"`
	Cancelled   int `json:"cancelled"`
}

// Add counts n suborders in status s.
func (st *SellerStats) Add(s OrderStatus, n int) {
	st.TotalOrders += n
	switch s {
	case OrderStatusPending:
		st.Pending += n
	case OrderStatusProcessing:
		st.Processing += n
	case OrderStatusShipped:
		st.Shipped += n
	case OrderStatusDelivered:
		st.Delivered += n
	case OrderStatusCancelled:
		st.Cancelled += n
	}
}
