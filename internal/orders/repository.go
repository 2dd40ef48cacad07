package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const selectOrders = `
	SELECT o.id, o.buyer_id, COALESCE(a.name, ''), COALESCE(a.email, ''),
		o.shipping_info, o.delivery_method, o.payment_method,
		o.subtotal, o.shipping_cost, o.tax, o.total,
		o.payment_status, o.status, COALESCE(o.external_payment_ref, ''),
		o.created_at, o.updated_at, o.status_updated_at
	FROM orders o
	LEFT JOIN accounts a ON a.id = o.buyer_id
`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	o := &domain.Order{LineItems: []domain.LineItem{}, Suborders: []domain.Suborder{}}
	buyer := &domain.AccountSummary{}

	err := row.Scan(&o.ID, &o.BuyerID, &buyer.Name, &buyer.Email,
		&o.ShippingInfo, &o.DeliveryMethod, &o.PaymentMethod,
		&o.Subtotal, &o.ShippingCost, &o.Tax, &o.Total,
		&o.PaymentStatus, &o.Status, &o.ExternalPaymentRef,
		&o.CreatedAt, &o.UpdatedAt, &o.StatusUpdatedAt)
	if err != nil {
		return nil, err
	}

	buyer.ID = o.BuyerID
	o.Buyer = buyer
	return o, nil
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, shipping_info, delivery_method, payment_method,
			subtotal, shipping_cost, tax, total, payment_status, status, external_payment_ref,
			created_at, updated_at, status_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $15)
	`, order.ID, order.BuyerID, order.ShippingInfo, order.DeliveryMethod, order.PaymentMethod,
		order.Subtotal, order.ShippingCost, order.Tax, order.Total, order.PaymentStatus, order.Status,
		order.ExternalPaymentRef, order.CreatedAt, order.UpdatedAt, order.StatusUpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, sub := range order.Suborders {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO suborders (id, order_id, seller_id, position, subtotal, status, status_updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, sub.ID, order.ID, sub.SellerID, i, sub.Subtotal, sub.Status, sub.StatusUpdatedAt)
		if err != nil {
			return fmt.Errorf("insert suborder: %w", err)
		}
	}

	for i, item := range order.LineItems {
		sub := order.SuborderFor(item.SellerID)
		if sub == nil {
			return fmt.Errorf("line item %d: no suborder for seller %s", i, item.SellerID)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, suborder_id, position, product_id, seller_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, order.ID, sub.ID, i, item.ProductID, item.SellerID, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes the order; suborders and items cascade.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return nil
}

// DeleteLocked locks the order row, runs fn on the loaded order and deletes
// the order in the same transaction. An error from fn keeps the order.
// Status writers block on the lock until the deletion commits or rolls back.
func (r *OrderRepository) DeleteLocked(ctx context.Context, id string, fn func(*domain.Order) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := r.getByID(ctx, tx, id, "FOR UPDATE OF o")
	if err != nil {
		return err
	}

	if err := fn(order); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	return tx.Commit()
}

// MarkRefunded records a refund on an order that is kept.
func (r *OrderRepository) MarkRefunded(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = NOW()
		WHERE id = $2
	`, domain.PaymentStatusRefunded, id)
	return err
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getByID(ctx, r.db, id, "")
}

func (r *OrderRepository) getByID(ctx context.Context, q queryer, id, lock string) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, selectOrders+`WHERE o.id = $1 `+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
		}
		return nil, err
	}

	if err := r.attachChildren(ctx, q, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByBuyer returns the buyer's orders, newest first.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrders+`
		WHERE o.buyer_id = $1
		ORDER BY o.created_at DESC, o.id
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ptrs []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachChildren(ctx, r.db, ptrs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(ptrs))
	for _, o := range ptrs {
		orders = append(orders, *o)
	}
	return orders, nil
}

// attachChildren loads suborders and line items for orders with one query each.
func (r *OrderRepository) attachChildren(ctx context.Context, q queryer, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	subRows, err := q.QueryContext(ctx, `
		SELECT s.id, s.order_id, s.seller_id, COALESCE(a.name, ''), COALESCE(a.profile->>'shop_name', ''),
			s.subtotal, s.status, s.status_updated_at
		FROM suborders s
		LEFT JOIN accounts a ON a.id = s.seller_id
		WHERE s.order_id = ANY($1::uuid[])
		ORDER BY s.order_id, s.position
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = subRows.Close() }()

	for subRows.Next() {
		var orderID string
		sub := domain.Suborder{Items: []domain.LineItem{}}
		if err := subRows.Scan(&sub.ID, &orderID, &sub.SellerID, &sub.SellerName, &sub.ShopName,
			&sub.Subtotal, &sub.Status, &sub.StatusUpdatedAt); err != nil {
			return err
		}
		o := byID[orderID]
		o.Suborders = append(o.Suborders, sub)
	}
	if err := subRows.Err(); err != nil {
		return err
	}

	itemRows, err := q.QueryContext(ctx, `
		SELECT i.order_id, i.suborder_id, i.product_id, COALESCE(p.name, ''), i.seller_id, i.quantity, i.unit_price
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1::uuid[])
		ORDER BY i.order_id, i.position
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID, suborderID string
		var item domain.LineItem
		if err := itemRows.Scan(&orderID, &suborderID, &item.ProductID, &item.ProductName,
			&item.SellerID, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		o := byID[orderID]
		o.LineItems = append(o.LineItems, item)
		if sub := o.Suborder(suborderID); sub != nil {
			sub.Items = append(sub.Items, item)
		}
	}

	return itemRows.Err()
}

// UpdateSuborderStatus locks the order row, applies fn to the loaded order
// and persists every suborder status plus the order's aggregate fields.
// Concurrent writers to the same order are serialized by the row lock.
func (r *OrderRepository) UpdateSuborderStatus(ctx context.Context, orderID string, fn func(*domain.Order) error) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := r.getByID(ctx, tx, orderID, "FOR UPDATE OF o")
	if err != nil {
		return nil, err
	}

	if err := fn(order); err != nil {
		return nil, err
	}

	for _, sub := range order.Suborders {
		_, err := tx.ExecContext(ctx, `
			UPDATE suborders SET status = $1, status_updated_at = $2
			WHERE id = $3 AND order_id = $4
		`, sub.Status, sub.StatusUpdatedAt, sub.ID, order.ID)
		if err != nil {
			return nil, fmt.Errorf("update suborder: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, status_updated_at = $3, updated_at = $4
		WHERE id = $5
	`, order.Status, order.PaymentStatus, order.StatusUpdatedAt, order.UpdatedAt, order.ID)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// ListSellerSuborders flattens every suborder owned by sellerID, newest order first.
func (r *OrderRepository) ListSellerSuborders(ctx context.Context, sellerID string) ([]domain.SellerSuborder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, s.id, o.buyer_id, COALESCE(b.name, ''), COALESCE(b.email, ''),
			o.shipping_info, o.delivery_method, o.payment_method, o.status, o.payment_status,
			s.seller_id, COALESCE(sa.name, ''), COALESCE(sa.profile->>'shop_name', ''),
			s.subtotal, s.status, s.status_updated_at,
			o.created_at, o.updated_at
		FROM suborders s
		JOIN orders o ON o.id = s.order_id
		LEFT JOIN accounts b ON b.id = o.buyer_id
		LEFT JOIN accounts sa ON sa.id = s.seller_id
		WHERE s.seller_id = $1
		ORDER BY o.created_at DESC, o.id
	`, sellerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var views []domain.SellerSuborder
	index := make(map[string]int)
	var suborderIDs []string

	for rows.Next() {
		v := domain.SellerSuborder{Buyer: &domain.AccountSummary{}}
		v.Suborder.Items = []domain.LineItem{}
		if err := rows.Scan(&v.OrderID, &v.SuborderID, &v.Buyer.ID, &v.Buyer.Name, &v.Buyer.Email,
			&v.ShippingInfo, &v.DeliveryMethod, &v.PaymentMethod, &v.OrderStatus, &v.PaymentStatus,
			&v.Suborder.SellerID, &v.Suborder.SellerName, &v.Suborder.ShopName,
			&v.Suborder.Subtotal, &v.Suborder.Status, &v.Suborder.StatusUpdatedAt,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		v.Suborder.ID = v.SuborderID
		index[v.SuborderID] = len(views)
		suborderIDs = append(suborderIDs, v.SuborderID)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(views) == 0 {
		return views, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT i.suborder_id, i.product_id, COALESCE(p.name, ''), i.seller_id, i.quantity, i.unit_price
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.suborder_id = ANY($1::uuid[])
		ORDER BY i.suborder_id, i.position
	`, pq.Array(suborderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var suborderID string
		var item domain.LineItem
		if err := itemRows.Scan(&suborderID, &item.ProductID, &item.ProductName, &item.SellerID,
			&item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		v := &views[index[suborderID]]
		v.Suborder.Items = append(v.Suborder.Items, item)
	}

	return views, itemRows.Err()
}

func (r *OrderRepository) SellerStats(ctx context.Context, sellerID string) (domain.SellerStats, error) {
	var stats domain.SellerStats

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM suborders
		WHERE seller_id = $1
		GROUP BY status
	`, sellerID)
	if err != nil {
		return stats, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status domain.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		stats.Add(status, n)
	}

	return stats, rows.Err()
}
