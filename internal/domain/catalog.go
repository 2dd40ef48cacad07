package domain

import "github.com/shopspring/decimal"

// SellerStock is one seller's offer for a product.
type SellerStock struct {
	SellerID  string          `json:"seller_id"`
	Stock     int             `json:"stock"`
	UnitPrice decimal.Decimal `json:"price"`
}

type Product struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Sellers []SellerStock `json:"sellers"`
}

// Seller returns the stock entry for sellerID, or nil.
func (p *Product) Seller(sellerID string) *SellerStock {
	for i := range p.Sellers {
		if p.Sellers[i].SellerID == sellerID {
			return &p.Sellers[i]
		}
	}
	return nil
}
