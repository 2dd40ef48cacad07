package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		p.Sellers = []domain.SellerStock{}
		index[p.ID] = len(products)
		ids = append(ids, p.ID)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return products, nil
	}

	offerRows, err := r.db.QueryContext(ctx, `
		SELECT product_id, seller_id, stock, price
		FROM product_sellers
		WHERE product_id = ANY($1::uuid[])
		ORDER BY seller_id
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = offerRows.Close() }()

	for offerRows.Next() {
		var productID string
		var s domain.SellerStock
		if err := offerRows.Scan(&productID, &s.SellerID, &s.Stock, &s.UnitPrice); err != nil {
			return nil, err
		}
		p := &products[index[productID]]
		p.Sellers = append(p.Sellers, s)
	}

	return products, offerRows.Err()
}

func (r *Repository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p := &domain.Product{Sellers: []domain.SellerStock{}}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT seller_id, stock, price
		FROM product_sellers
		WHERE product_id = $1
		ORDER BY seller_id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var s domain.SellerStock
		if err := rows.Scan(&s.SellerID, &s.Stock, &s.UnitPrice); err != nil {
			return nil, err
		}
		p.Sellers = append(p.Sellers, s)
	}

	return p, rows.Err()
}

// Reserve decrements the seller's stock by quantity in a single conditional
// UPDATE, so concurrent reservations can never drive stock below zero.
func (r *Repository) Reserve(ctx context.Context, productID, sellerID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE product_sellers
		SET stock = stock - $3, updated_at = NOW()
		WHERE product_id = $1 AND seller_id = $2 AND stock >= $3
	`, productID, sellerID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return r.missingOrShort(ctx, productID, sellerID)
	}

	return nil
}

// Release increments the seller's stock by quantity. There is no upper bound.
func (r *Repository) Release(ctx context.Context, productID, sellerID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE product_sellers
		SET stock = stock + $3, updated_at = NOW()
		WHERE product_id = $1 AND seller_id = $2
	`, productID, sellerID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: seller %s no longer offers product %s", domain.ErrSellerMismatch, sellerID, productID)
	}

	return nil
}

func (r *Repository) missingOrShort(ctx context.Context, productID, sellerID string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM product_sellers WHERE product_id = $1 AND seller_id = $2)
	`, productID, sellerID).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: seller %s no longer offers product %s", domain.ErrSellerMismatch, sellerID, productID)
	}
	return fmt.Errorf("%w: product %s from seller %s", domain.ErrInsufficientStock, productID, sellerID)
}
