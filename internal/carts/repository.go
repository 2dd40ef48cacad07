package carts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID, Items: []domain.CartItem{}}

	err := r.db.QueryRowContext(ctx, `
		SELECT updated_at FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCartNotFound, userID)
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, seller_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, product_id, seller_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.SellerID, &item.Quantity); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}

	return cart, rows.Err()
}

// AddItem creates the cart on first use and merges quantities for an
// existing product/seller pair.
func (r *Repository) AddItem(ctx context.Context, userID string, item domain.CartItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
	`, userID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, seller_id, quantity, added_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, product_id, seller_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, userID, item.ProductID, item.SellerID, item.Quantity)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveItems drops every cart line matching one of keys and deletes the cart
// when nothing is left. A missing cart is not an error.
func (r *Repository) RemoveItems(ctx context.Context, userID string, keys []domain.ItemKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE user_id = $1 AND product_id = $2 AND seller_id = $3
		`, userID, key.ProductID, key.SellerID)
		if err != nil {
			return err
		}
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cart_items WHERE user_id = $1
	`, userID).Scan(&remaining); err != nil {
		return err
	}

	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE user_id = $1`, userID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
