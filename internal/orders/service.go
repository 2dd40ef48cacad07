package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/marketplace-orderflow/internal/clock"
	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
	"github.com/joao-fontenele/marketplace-orderflow/internal/payment"
	"github.com/joao-fontenele/marketplace-orderflow/internal/telemetry"
)

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type Stock interface {
	Reserve(ctx context.Context, productID, sellerID string, quantity int) error
	Release(ctx context.Context, productID, sellerID string, quantity int) error
}

type Accounts interface {
	GetUser(ctx context.Context, userID string) (*domain.Account, error)
}

type Carts interface {
	RemoveItems(ctx context.Context, userID string, keys []domain.ItemKey) error
}

type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id string) error
	DeleteLocked(ctx context.Context, id string, fn func(*domain.Order) error) error
	MarkRefunded(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	ListSellerSuborders(ctx context.Context, sellerID string) ([]domain.SellerSuborder, error)
	SellerStats(ctx context.Context, sellerID string) (domain.SellerStats, error)
	UpdateSuborderStatus(ctx context.Context, orderID string, fn func(*domain.Order) error) (*domain.Order, error)
}

type Refunder interface {
	Refund(ctx context.Context, paymentRef string) error
}

type Notifier interface {
	Dispatch(event domain.OrderConfirmationEvent) bool
}

// Dependencies wires a Service. Refunder may be nil when no payment gateway
// is configured; deleting a card order then fails with ErrRefund.
type Dependencies struct {
	Store    Store
	Catalog  Catalog
	Stock    Stock
	Accounts Accounts
	Carts    Carts
	Refunder Refunder
	Notifier Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  *telemetry.OrderMetrics
}

type Service struct {
	store    Store
	catalog  Catalog
	stock    Stock
	accounts Accounts
	carts    Carts
	refunder Refunder
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *telemetry.OrderMetrics
	tracer   trace.Tracer
	newID    func() string
}

func NewService(deps Dependencies) *Service {
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:    deps.Store,
		catalog:  deps.Catalog,
		stock:    deps.Stock,
		accounts: deps.Accounts,
		carts:    deps.Carts,
		refunder: deps.Refunder,
		notifier: deps.Notifier,
		clock:    clk,
		logger:   logger,
		metrics:  deps.Metrics,
		tracer:   otel.Tracer("marketplace-orderflow/orders"),
		newID:    uuid.NewString,
	}
}

type CreateOrderInput struct {
	BuyerID        string
	Items          []domain.LineItem
	ShippingInfo   domain.ShippingInfo
	DeliveryMethod string
	PaymentMethod  domain.PaymentMethod
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	Payment        *payment.Confirmation
}

type CreateOrderResult struct {
	Order            *domain.Order
	PaymentReference string
}

// CreateOrder validates the request, persists the order split into one
// suborder per seller, reserves stock for every line item and queues the
// buyer's confirmation. If any reservation fails, earlier reservations are
// released and the order is removed.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "orders.create",
		trace.WithAttributes(
			attribute.String("buyer.id", in.BuyerID),
			attribute.Int("order.items", len(in.Items)),
		))
	defer span.End()

	result, reason, err := s.createOrder(ctx, in)
	if err != nil {
		s.metrics.OrderFailed(ctx, reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", result.Order.ID),
		attribute.Int("order.suborders", len(result.Order.Suborders)),
	)
	s.metrics.OrderCreated(ctx, len(result.Order.Suborders))
	return result, nil
}

func (s *Service) createOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, string, error) {
	if err := validateCreate(in); err != nil {
		return nil, "validation", err
	}

	if err := payment.Validate(in.PaymentMethod, in.Payment); err != nil {
		return nil, "payment", err
	}

	items, err := s.checkCatalog(ctx, in.Items)
	if err != nil {
		return nil, "catalog", err
	}

	buyer, err := s.accounts.GetUser(ctx, in.BuyerID)
	if err != nil {
		return nil, "buyer", err
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:              s.newID(),
		BuyerID:         in.BuyerID,
		Buyer:           buyer.Summary(),
		LineItems:       items,
		Suborders:       domain.GroupBySeller(items, s.newID, now),
		ShippingInfo:    in.ShippingInfo,
		DeliveryMethod:  in.DeliveryMethod,
		PaymentMethod:   in.PaymentMethod,
		Subtotal:        in.Subtotal,
		ShippingCost:    in.ShippingCost,
		Tax:             in.Tax,
		Total:           in.Total,
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusUpdatedAt: now,
	}

	var paymentRef string
	if in.PaymentMethod.UsesGateway() {
		paymentRef = in.Payment.ID
		order.PaymentStatus = domain.PaymentStatusPaid
		order.ExternalPaymentRef = paymentRef
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, "persist", fmt.Errorf("persist order: %w", err)
	}

	if err := s.reserveAll(ctx, order); err != nil {
		return nil, "stock", err
	}

	s.clearCart(ctx, order)

	if buyer.Email != "" && s.notifier != nil {
		event := domain.NewOrderConfirmationEvent(buyer.Email, order, buyer)
		if !s.notifier.Dispatch(event) {
			s.logger.Warn("order confirmation dropped", "order_id", order.ID)
		}
	}

	s.logger.Info("order created",
		"order_id", order.ID,
		"buyer_id", order.BuyerID,
		"suborders", len(order.Suborders),
		"payment_method", order.PaymentMethod,
	)

	expanded, err := s.store.GetByID(ctx, order.ID)
	if err != nil {
		s.logger.Error("failed to reload created order", "error", err, "order_id", order.ID)
		expanded = order
	}

	return &CreateOrderResult{Order: expanded, PaymentReference: paymentRef}, "", nil
}

func validateCreate(in CreateOrderInput) error {
	if in.BuyerID == "" {
		return fmt.Errorf("%w: buyer id is required", domain.ErrValidation)
	}
	if err := validateID("buyer", in.BuyerID); err != nil {
		return err
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", domain.ErrValidation)
	}
	if in.ShippingInfo.IsZero() {
		return fmt.Errorf("%w: shipping info is required", domain.ErrValidation)
	}
	if in.PaymentMethod == "" {
		return fmt.Errorf("%w: payment method is required", domain.ErrValidation)
	}

	for i, item := range in.Items {
		if err := validateID("product", item.ProductID); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if err := validateID("seller", item.SellerID); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", domain.ErrValidation, i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d: price must not be negative", domain.ErrValidation, i)
		}
		if !isCents(item.UnitPrice) {
			return fmt.Errorf("%w: item %d: price %s has more than two decimal places", domain.ErrValidation, i, item.UnitPrice)
		}
	}

	for name, amount := range map[string]decimal.Decimal{
		"subtotal": in.Subtotal,
		"shipping": in.ShippingCost,
		"tax":      in.Tax,
		"total":    in.Total,
	} {
		if !isCents(amount) {
			return fmt.Errorf("%w: %s %s has more than two decimal places", domain.ErrValidation, name, amount)
		}
	}

	return nil
}

// isCents reports whether d fits the two decimal places money is stored with.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

func validateID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid %s id %q", domain.ErrValidation, kind, id)
	}
	return nil
}

// checkCatalog looks up every product concurrently, then checks items in
// request order so the first failing item decides the error. The returned
// items carry the catalog product names.
func (s *Service) checkCatalog(ctx context.Context, items []domain.LineItem) ([]domain.LineItem, error) {
	products := make([]*domain.Product, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, item := range items {
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, item.ProductID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil
				}
				return err
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	checked := make([]domain.LineItem, len(items))
	for i, item := range items {
		p := products[i]
		if p == nil {
			return nil, fmt.Errorf("%w: product with id %s", domain.ErrProductNotFound, item.ProductID)
		}

		offer := p.Seller(item.SellerID)
		if offer == nil {
			return nil, fmt.Errorf("%w: seller %s for product %s", domain.ErrSellerMismatch, item.SellerID, p.Name)
		}
		if offer.Stock < item.Quantity {
			return nil, fmt.Errorf("%w: %s (requested %d, available %d)",
				domain.ErrInsufficientStock, p.Name, item.Quantity, offer.Stock)
		}

		item.ProductName = p.Name
		checked[i] = item
	}

	return checked, nil
}

// reserveAll decrements stock item by item. On the first failure it releases
// what was already reserved and deletes the order.
func (s *Service) reserveAll(ctx context.Context, order *domain.Order) error {
	for i, item := range order.LineItems {
		err := s.stock.Reserve(ctx, item.ProductID, item.SellerID, item.Quantity)
		if err == nil {
			s.metrics.Stock(ctx, "reserve", "ok")
			continue
		}

		s.metrics.Stock(ctx, "reserve", "failed")
		s.logger.Warn("stock reservation failed",
			"error", err,
			"order_id", order.ID,
			"product_id", item.ProductID,
			"seller_id", item.SellerID,
		)

		s.releaseItems(ctx, order.ID, order.LineItems[:i])
		if delErr := s.store.Delete(ctx, order.ID); delErr != nil {
			s.logger.Error("failed to remove order after reservation failure",
				"error", delErr, "order_id", order.ID)
		}

		return fmt.Errorf("%w: product %s from seller %s: %w",
			domain.ErrStockUpdate, item.ProductID, item.SellerID, err)
	}
	return nil
}

// releaseItems returns stock for items, logging failures.
func (s *Service) releaseItems(ctx context.Context, orderID string, items []domain.LineItem) {
	for _, item := range items {
		if err := s.stock.Release(ctx, item.ProductID, item.SellerID, item.Quantity); err != nil {
			s.metrics.Stock(ctx, "release", "failed")
			s.logger.Error("failed to release reserved stock",
				"error", err,
				"order_id", orderID,
				"product_id", item.ProductID,
				"seller_id", item.SellerID,
				"quantity", item.Quantity,
			)
			continue
		}
		s.metrics.Stock(ctx, "release", "ok")
	}
}

// reserveAgain takes back stock that was restored by an aborted deletion.
func (s *Service) reserveAgain(ctx context.Context, orderID string, items []domain.LineItem) {
	for _, item := range items {
		if err := s.stock.Reserve(ctx, item.ProductID, item.SellerID, item.Quantity); err != nil {
			s.logger.Error("failed to re-reserve stock after aborted deletion",
				"error", err,
				"order_id", orderID,
				"product_id", item.ProductID,
				"seller_id", item.SellerID,
			)
		}
	}
}

func (s *Service) clearCart(ctx context.Context, order *domain.Order) {
	if s.carts == nil {
		return
	}

	keys := make([]domain.ItemKey, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		keys = append(keys, domain.ItemKey{ProductID: item.ProductID, SellerID: item.SellerID})
	}

	if err := s.carts.RemoveItems(ctx, order.BuyerID, keys); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("failed to clean buyer cart", "error", err, "order_id", order.ID, "buyer_id", order.BuyerID)
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if err := validateID("order", id); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}

// ListUserOrders returns the buyer's orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}

	orders, err := s.store.ListByBuyer(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: no orders for user %s", domain.ErrNotFound, userID)
	}
	return orders, nil
}

// SellerSuborders returns every suborder owned by the seller, newest order first.
func (s *Service) SellerSuborders(ctx context.Context, sellerID string) ([]domain.SellerSuborder, error) {
	if err := validateID("seller", sellerID); err != nil {
		return nil, err
	}

	views, err := s.store.ListSellerSuborders(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%w: no suborders for seller %s", domain.ErrNotFound, sellerID)
	}
	return views, nil
}

func (s *Service) SellerStats(ctx context.Context, sellerID string) (domain.SellerStats, error) {
	if err := validateID("seller", sellerID); err != nil {
		return domain.SellerStats{}, err
	}
	return s.store.SellerStats(ctx, sellerID)
}

// UpdateSuborderStatus sets one suborder's status and recomputes the order's
// aggregate status. Updates to the same order are serialized by the store.
func (s *Service) UpdateSuborderStatus(ctx context.Context, orderID, suborderID string, status domain.OrderStatus) (*domain.Order, error) {
	if err := validateID("order", orderID); err != nil {
		return nil, err
	}
	if err := validateID("suborder", suborderID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	ctx, span := s.tracer.Start(ctx, "orders.update_suborder_status",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("suborder.id", suborderID),
			attribute.String("suborder.status", string(status)),
		))
	defer span.End()

	order, err := s.store.UpdateSuborderStatus(ctx, orderID, func(o *domain.Order) error {
		if err := o.SetSuborderStatus(suborderID, status, s.clock.Now()); err != nil {
			return fmt.Errorf("%w: %s in order %s", err, suborderID, orderID)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	s.metrics.StatusChanged(ctx, string(status))
	s.logger.Info("suborder status updated",
		"order_id", orderID,
		"suborder_id", suborderID,
		"status", status,
		"order_status", order.Status,
	)
	return order, nil
}

// DeleteOrder cancels a pending order: stock goes back to every seller, a
// gateway payment is refunded, then the order is removed. The order row stays
// locked throughout, so a concurrent status write cannot slip past the
// pending check. If any step fails the order is kept and stock already
// returned is reserved again.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := validateID("order", id); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "orders.delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	err := s.deleteOrder(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

func (s *Service) deleteOrder(ctx context.Context, id string) error {
	var (
		order    *domain.Order
		applied  bool
		refunded bool
	)

	err := s.store.DeleteLocked(ctx, id, func(o *domain.Order) error {
		order = o
		if o.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be deleted, order %s is %s",
				domain.ErrInvalidState, id, o.Status)
		}

		for i, item := range o.LineItems {
			if err := s.stock.Release(ctx, item.ProductID, item.SellerID, item.Quantity); err != nil {
				s.metrics.Stock(ctx, "release", "failed")
				s.reserveAgain(ctx, id, o.LineItems[:i])
				return fmt.Errorf("%w: product %s from seller %s: %w",
					domain.ErrStockRestore, item.ProductID, item.SellerID, err)
			}
			s.metrics.Stock(ctx, "release", "ok")
		}

		// A refund recorded by an earlier failed deletion is not issued twice.
		if o.PaymentMethod.UsesGateway() && o.ExternalPaymentRef != "" && o.PaymentStatus != domain.PaymentStatusRefunded {
			if err := s.refund(ctx, o.ExternalPaymentRef); err != nil {
				s.reserveAgain(ctx, id, o.LineItems)
				return err
			}
			refunded = true
			s.logger.Info("payment refunded", "order_id", id, "payment_ref", o.ExternalPaymentRef)
		}

		applied = true
		return nil
	})
	if err != nil {
		if applied {
			s.keepAfterFailedDelete(ctx, order, refunded, err)
		}
		return err
	}

	s.logger.Info("order deleted", "order_id", id, "items", len(order.LineItems))
	return nil
}

// keepAfterFailedDelete undoes the stock release of a deletion whose final
// delete did not commit. A refund cannot be undone, so it is recorded on the
// kept order instead.
func (s *Service) keepAfterFailedDelete(ctx context.Context, order *domain.Order, refunded bool, cause error) {
	s.reserveAgain(ctx, order.ID, order.LineItems)
	if !refunded {
		return
	}

	if err := s.store.MarkRefunded(ctx, order.ID); err != nil {
		s.logger.Error("order kept after refund, refund not recorded",
			"error", err, "cause", cause, "order_id", order.ID, "payment_ref", order.ExternalPaymentRef)
		return
	}
	s.logger.Error("order kept after refund",
		"error", cause, "order_id", order.ID, "payment_ref", order.ExternalPaymentRef)
}

func (s *Service) refund(ctx context.Context, ref string) error {
	if s.refunder == nil {
		return fmt.Errorf("%w: payment gateway not configured", domain.ErrRefund)
	}

	err := s.refunder.Refund(ctx, ref)
	if err != nil && !errors.Is(err, domain.ErrRefund) {
		return fmt.Errorf("%w: %w", domain.ErrRefund, err)
	}
	return err
}
