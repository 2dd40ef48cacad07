package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stepClock advances by one second on every read so creation order is observable.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeCatalog struct {
	mu          sync.Mutex
	products    map[string]*domain.Product
	failReserve map[string]error
	failRelease map[string]error
	onRelease   func()
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products:    make(map[string]*domain.Product),
		failReserve: make(map[string]error),
		failRelease: make(map[string]error),
	}
}

func (c *fakeCatalog) add(productID, name, sellerID string, stock int, price string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		p = &domain.Product{ID: productID, Name: name}
		c.products[productID] = p
	}
	p.Sellers = append(p.Sellers, domain.SellerStock{
		SellerID:  sellerID,
		Stock:     stock,
		UnitPrice: decimal.RequireFromString(price),
	})
}

func (c *fakeCatalog) stock(productID, sellerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products[productID].Seller(sellerID).Stock
}

func (c *fakeCatalog) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	cp := *p
	cp.Sellers = append([]domain.SellerStock(nil), p.Sellers...)
	return &cp, nil
}

func (c *fakeCatalog) Reserve(_ context.Context, productID, sellerID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failReserve[productID]; err != nil {
		return err
	}
	offer := c.offer(productID, sellerID)
	if offer == nil {
		return domain.ErrSellerMismatch
	}
	if offer.Stock < quantity {
		return domain.ErrInsufficientStock
	}
	offer.Stock -= quantity
	return nil
}

func (c *fakeCatalog) Release(_ context.Context, productID, sellerID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onRelease != nil {
		c.onRelease()
	}
	if err := c.failRelease[productID]; err != nil {
		return err
	}
	offer := c.offer(productID, sellerID)
	if offer == nil {
		return domain.ErrSellerMismatch
	}
	offer.Stock += quantity
	return nil
}

func (c *fakeCatalog) offer(productID, sellerID string) *domain.SellerStock {
	p, ok := c.products[productID]
	if !ok {
		return nil
	}
	return p.Seller(sellerID)
}

type fakeAccounts struct {
	users map[string]*domain.Account
}

func (a *fakeAccounts) GetUser(_ context.Context, userID string) (*domain.Account, error) {
	u, ok := a.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	return u, nil
}

type fakeCarts struct {
	mu      sync.Mutex
	removed map[string][]domain.ItemKey
	err     error
}

func (c *fakeCarts) RemoveItems(_ context.Context, userID string, keys []domain.ItemKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if c.removed == nil {
		c.removed = make(map[string][]domain.ItemKey)
	}
	c.removed[userID] = append(c.removed[userID], keys...)
	return nil
}

type fakeRefunder struct {
	refs []string
	err  error
}

func (r *fakeRefunder) Refund(_ context.Context, ref string) error {
	r.refs = append(r.refs, ref)
	return r.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.OrderConfirmationEvent
}

func (n *fakeNotifier) Dispatch(event domain.OrderConfirmationEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return true
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*domain.Order)}
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.LineItems = append([]domain.LineItem(nil), o.LineItems...)
	cp.Suborders = make([]domain.Suborder, len(o.Suborders))
	for i, s := range o.Suborders {
		s.Items = append([]domain.LineItem(nil), s.Items...)
		cp.Suborders[i] = s
	}
	return &cp
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

// DeleteLocked holds the store lock while fn runs, like the row lock held by
// the repository.
func (s *fakeStore) DeleteLocked(_ context.Context, id string, fn func(*domain.Order) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err := fn(cloneOrder(o)); err != nil {
		return err
	}
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.orders, id)
	return nil
}

func (s *fakeStore) MarkRefunded(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	o.PaymentStatus = domain.PaymentStatusRefunded
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (s *fakeStore) ListByBuyer(_ context.Context, buyerID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) ListSellerSuborders(_ context.Context, sellerID string) ([]domain.SellerSuborder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SellerSuborder
	for _, o := range s.orders {
		for _, sub := range o.Suborders {
			if sub.SellerID != sellerID {
				continue
			}
			out = append(out, domain.SellerSuborder{
				OrderID:       o.ID,
				SuborderID:    sub.ID,
				Buyer:         o.Buyer,
				ShippingInfo:  o.ShippingInfo,
				PaymentMethod: o.PaymentMethod,
				OrderStatus:   o.Status,
				PaymentStatus: o.PaymentStatus,
				Suborder:      sub,
				CreatedAt:     o.CreatedAt,
				UpdatedAt:     o.UpdatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) SellerStats(_ context.Context, sellerID string) (domain.SellerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.SellerStats
	for _, o := range s.orders {
		for _, sub := range o.Suborders {
			if sub.SellerID == sellerID {
				stats.Add(sub.Status, 1)
			}
		}
	}
	return stats, nil
}

func (s *fakeStore) UpdateSuborderStatus(_ context.Context, orderID string, fn func(*domain.Order) error) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}

	working := cloneOrder(o)
	if err := fn(working); err != nil {
		return nil, err
	}
	s.orders[orderID] = working
	return cloneOrder(working), nil
}
