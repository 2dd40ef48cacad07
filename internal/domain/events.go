package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const TopicOrderConfirmation = "order.confirmation"

type OrderConfirmationEvent struct {
	OrderID       string          `json:"order_id"`
	BuyerID       string          `json:"buyer_id"`
	BuyerName     string          `json:"buyer_name"`
	To            string          `json:"to"`
	Items         []LineItem      `json:"items"`
	SellerCount   int             `json:"seller_count"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewOrderConfirmationEvent(to string, order *Order, buyer *Account) OrderConfirmationEvent {
	return OrderConfirmationEvent{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		BuyerName:     buyer.Name,
		To:            to,
		Items:         order.LineItems,
		SellerCount:   len(order.Suborders),
		Total:         order.Total,
		PaymentMethod: order.PaymentMethod,
		Timestamp:     order.CreatedAt,
	}
}
