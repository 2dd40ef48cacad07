package domain

import "time"

type CartItem struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ItemKey identifies a product offered by a specific seller.
type ItemKey struct {
	ProductID string
	SellerID  string
}
