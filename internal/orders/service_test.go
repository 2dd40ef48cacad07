package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/marketplace-orderflow/internal/clock"
	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
	"github.com/joao-fontenele/marketplace-orderflow/internal/payment"
)

const (
	buyerID    = "11111111-1111-4111-8111-111111111111"
	sellerA    = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	sellerB    = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
	productTea = "c0000000-0000-4000-8000-000000000001"
	productMug = "c0000000-0000-4000-8000-000000000002"
	productPot = "c0000000-0000-4000-8000-000000000003"
	missingID  = "d0000000-0000-4000-8000-000000000000"
)

type testEnv struct {
	svc      *Service
	store    *fakeStore
	catalog  *fakeCatalog
	carts    *fakeCarts
	refunder *fakeRefunder
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	catalog := newFakeCatalog()
	catalog.add(productTea, "Green Tea", sellerA, 10, "4.50")
	catalog.add(productMug, "Mug", sellerA, 5, "12.00")
	catalog.add(productMug, "Mug", sellerB, 3, "11.00")
	catalog.add(productPot, "Teapot", sellerB, 2, "30.00")

	env := &testEnv{
		store:    newFakeStore(),
		catalog:  catalog,
		carts:    &fakeCarts{},
		refunder: &fakeRefunder{},
		notifier: &fakeNotifier{},
	}

	env.svc = NewService(Dependencies{
		Store:   env.store,
		Catalog: catalog,
		Stock:   catalog,
		Accounts: &fakeAccounts{users: map[string]*domain.Account{
			buyerID: {ID: buyerID, Email: "ana@example.com", Name: "Ana", Role: domain.RoleBuyer, IsActive: true},
		}},
		Carts:    env.carts,
		Refunder: env.refunder,
		Notifier: env.notifier,
		Clock:    &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		Logger:   discardLogger(),
	})

	return env
}

func item(productID, sellerID string, qty int, price string) domain.LineItem {
	return domain.LineItem{
		ProductID: productID,
		SellerID:  sellerID,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func codInput(items ...domain.LineItem) CreateOrderInput {
	return CreateOrderInput{
		BuyerID: buyerID,
		Items:   items,
		ShippingInfo: domain.ShippingInfo{
			FullName: "Ana Souza", Address: "Rua A 1", City: "Lisbon", PostalCode: "1000-001", Country: "PT",
		},
		DeliveryMethod: "standard",
		PaymentMethod:  domain.PaymentMethodCOD,
		Subtotal:       decimal.RequireFromString("21.00"),
		ShippingCost:   decimal.RequireFromString("5.00"),
		Tax:            decimal.RequireFromString("1.00"),
		Total:          decimal.RequireFromString("27.00"),
	}
}

func cardInput(items ...domain.LineItem) CreateOrderInput {
	in := codInput(items...)
	in.PaymentMethod = domain.PaymentMethodCard
	in.Payment = &payment.Confirmation{ID: "pi_123", Status: payment.StatusSucceeded}
	return in
}

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("splits items into one suborder per seller", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.CreateOrder(ctx, codInput(
			item(productTea, sellerA, 2, "4.50"),
			item(productPot, sellerB, 1, "30.00"),
			item(productMug, sellerA, 1, "12.00"),
		))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		order := result.Order
		if len(order.Suborders) != 2 {
			t.Fatalf("expected 2 suborders, got %d", len(order.Suborders))
		}
		if order.Suborders[0].SellerID != sellerA || order.Suborders[1].SellerID != sellerB {
			t.Errorf("suborders not in first-seen seller order: %s, %s", order.Suborders[0].SellerID, order.Suborders[1].SellerID)
		}
		if got := order.Suborders[0].Subtotal; !got.Equal(decimal.RequireFromString("21.00")) {
			t.Errorf("seller A subtotal = %s, want 21.00", got)
		}
		if got := order.Suborders[1].Subtotal; !got.Equal(decimal.RequireFromString("30.00")) {
			t.Errorf("seller B subtotal = %s, want 30.00", got)
		}

		sum := decimal.Zero
		for _, s := range order.Suborders {
			if s.Status != domain.OrderStatusPending {
				t.Errorf("suborder %s status = %s, want pending", s.ID, s.Status)
			}
			sum = sum.Add(s.Subtotal)
		}
		lineSum := decimal.Zero
		for _, li := range order.LineItems {
			lineSum = lineSum.Add(li.Amount())
		}
		if !sum.Equal(lineSum) {
			t.Errorf("suborder subtotals %s do not add up to line items %s", sum, lineSum)
		}

		if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
			t.Errorf("status/payment = %s/%s, want pending/pending", order.Status, order.PaymentStatus)
		}
		if result.PaymentReference != "" {
			t.Errorf("cash order should have no payment reference, got %q", result.PaymentReference)
		}
		if order.LineItems[0].ProductName != "Green Tea" {
			t.Errorf("product name not expanded: %q", order.LineItems[0].ProductName)
		}

		if got := env.catalog.stock(productTea, sellerA); got != 8 {
			t.Errorf("tea stock = %d, want 8", got)
		}
		if got := env.catalog.stock(productPot, sellerB); got != 1 {
			t.Errorf("teapot stock = %d, want 1", got)
		}
		if got := env.catalog.stock(productMug, sellerA); got != 4 {
			t.Errorf("mug stock = %d, want 4", got)
		}

		if got := len(env.carts.removed[buyerID]); got != 3 {
			t.Errorf("expected 3 cart pairs removed, got %d", got)
		}
		if env.notifier.count() != 1 {
			t.Fatalf("expected 1 notification, got %d", env.notifier.count())
		}
		event := env.notifier.events[0]
		if event.To != "ana@example.com" || event.OrderID != order.ID || event.SellerCount != 2 {
			t.Errorf("unexpected event: %+v", event)
		}
	})

	t.Run("card payment is recorded as paid", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.CreateOrder(ctx, cardInput(item(productTea, sellerA, 1, "4.50")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Order.PaymentStatus != domain.PaymentStatusPaid {
			t.Errorf("payment status = %s, want paid", result.Order.PaymentStatus)
		}
		if result.Order.ExternalPaymentRef != "pi_123" || result.PaymentReference != "pi_123" {
			t.Errorf("payment ref = %q / %q, want pi_123", result.Order.ExternalPaymentRef, result.PaymentReference)
		}
	})

	t.Run("cart failure does not fail the order", func(t *testing.T) {
		env := newTestEnv(t)
		env.carts.err = errors.New("connection reset")

		if _, err := env.svc.CreateOrder(ctx, codInput(item(productTea, sellerA, 1, "4.50"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if env.store.len() != 1 {
			t.Errorf("expected order to be kept, store has %d", env.store.len())
		}
	})

	rejected := []struct {
		name    string
		input   func() CreateOrderInput
		wantErr error
	}{
		{
			name:    "missing buyer",
			input:   func() CreateOrderInput { in := codInput(item(productTea, sellerA, 1, "4.50")); in.BuyerID = ""; return in },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "buyer id is not a uuid",
			input:   func() CreateOrderInput { in := codInput(item(productTea, sellerA, 1, "4.50")); in.BuyerID = "42"; return in },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "no items",
			input:   func() CreateOrderInput { return codInput() },
			wantErr: domain.ErrValidation,
		},
		{
			name: "missing shipping info",
			input: func() CreateOrderInput {
				in := codInput(item(productTea, sellerA, 1, "4.50"))
				in.ShippingInfo = domain.ShippingInfo{}
				return in
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "missing payment method",
			input: func() CreateOrderInput {
				in := codInput(item(productTea, sellerA, 1, "4.50"))
				in.PaymentMethod = ""
				return in
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "zero quantity",
			input:   func() CreateOrderInput { return codInput(item(productTea, sellerA, 0, "4.50")) },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "sub-cent unit price",
			input:   func() CreateOrderInput { return codInput(item(productTea, sellerA, 3, "0.005")) },
			wantErr: domain.ErrValidation,
		},
		{
			name: "sub-cent total",
			input: func() CreateOrderInput {
				in := codInput(item(productTea, sellerA, 1, "4.50"))
				in.Total = decimal.RequireFromString("27.001")
				return in
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "stripe without confirmation",
			input: func() CreateOrderInput {
				in := codInput(item(productTea, sellerA, 1, "4.50"))
				in.PaymentMethod = domain.PaymentMethodStripe
				return in
			},
			wantErr: domain.ErrPayment,
		},
		{
			name:    "product id is not a uuid",
			input:   func() CreateOrderInput { return codInput(item("tea", sellerA, 1, "4.50")) },
			wantErr: domain.ErrValidation,
		},
		{
			name: "card without confirmation",
			input: func() CreateOrderInput {
				in := cardInput(item(productTea, sellerA, 1, "4.50"))
				in.Payment = nil
				return in
			},
			wantErr: domain.ErrPayment,
		},
		{
			name: "card confirmation not succeeded",
			input: func() CreateOrderInput {
				in := cardInput(item(productTea, sellerA, 1, "4.50"))
				in.Payment.Status = "requires_action"
				return in
			},
			wantErr: domain.ErrPayment,
		},
		{
			name:    "unknown product",
			input:   func() CreateOrderInput { return codInput(item(missingID, sellerA, 1, "4.50")) },
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "seller does not offer product",
			input:   func() CreateOrderInput { return codInput(item(productTea, sellerB, 1, "4.50")) },
			wantErr: domain.ErrSellerMismatch,
		},
		{
			name: "insufficient stock on a later item",
			input: func() CreateOrderInput {
				return codInput(item(productTea, sellerA, 1, "4.50"), item(productPot, sellerB, 3, "30.00"))
			},
			wantErr: domain.ErrInsufficientStock,
		},
	}

	for _, tt := range rejected {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			_, err := env.svc.CreateOrder(ctx, tt.input())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			if env.store.len() != 0 {
				t.Errorf("expected no order persisted, store has %d", env.store.len())
			}
			if got := env.catalog.stock(productTea, sellerA); got != 10 {
				t.Errorf("tea stock changed to %d", got)
			}
			if env.notifier.count() != 0 {
				t.Errorf("expected no notification, got %d", env.notifier.count())
			}
		})
	}

	t.Run("payment methods are opaque outside the gateway", func(t *testing.T) {
		tests := []struct {
			method      domain.PaymentMethod
			payment     *payment.Confirmation
			wantStatus  domain.PaymentStatus
			wantPayment string
		}{
			{"bank_transfer", nil, domain.PaymentStatusPending, ""},
			{domain.PaymentMethodStripe, &payment.Confirmation{ID: "pi_777", Status: payment.StatusSucceeded}, domain.PaymentStatusPaid, "pi_777"},
		}

		for _, tt := range tests {
			env := newTestEnv(t)
			in := codInput(item(productTea, sellerA, 1, "4.50"))
			in.PaymentMethod = tt.method
			in.Payment = tt.payment

			result, err := env.svc.CreateOrder(ctx, in)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.method, err)
			}
			if result.Order.PaymentStatus != tt.wantStatus {
				t.Errorf("%s: payment status = %s, want %s", tt.method, result.Order.PaymentStatus, tt.wantStatus)
			}
			if result.PaymentReference != tt.wantPayment {
				t.Errorf("%s: payment reference = %q, want %q", tt.method, result.PaymentReference, tt.wantPayment)
			}
		}
	})

	t.Run("reservation failure releases earlier items and removes the order", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.failReserve[productPot] = errors.New("deadlock detected")

		_, err := env.svc.CreateOrder(ctx, codInput(
			item(productTea, sellerA, 2, "4.50"),
			item(productMug, sellerB, 1, "11.00"),
			item(productPot, sellerB, 1, "30.00"),
		))
		if !errors.Is(err, domain.ErrStockUpdate) {
			t.Fatalf("expected ErrStockUpdate, got %v", err)
		}

		if env.store.len() != 0 {
			t.Errorf("expected order removed, store has %d", env.store.len())
		}
		if got := env.catalog.stock(productTea, sellerA); got != 10 {
			t.Errorf("tea stock = %d, want 10 after release", got)
		}
		if got := env.catalog.stock(productMug, sellerB); got != 3 {
			t.Errorf("mug stock = %d, want 3 after release", got)
		}
		if env.notifier.count() != 0 {
			t.Errorf("expected no notification, got %d", env.notifier.count())
		}
	})
}

func TestService_CreateOrder_ConcurrentReservations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.CreateOrder(ctx, codInput(item(productPot, sellerB, 1, "30.00")))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	if succeeded != 2 {
		t.Errorf("expected 2 orders to succeed with stock 2, got %d", succeeded)
	}
	for _, err := range failures {
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Errorf("loser should fail with insufficient stock, got %v", err)
		}
	}
	if got := env.catalog.stock(productPot, sellerB); got != 0 {
		t.Errorf("final stock = %d, want 0", got)
	}
	if env.store.len() != 2 {
		t.Errorf("expected 2 stored orders, got %d", env.store.len())
	}
}

func TestService_UpdateSuborderStatus(t *testing.T) {
	ctx := context.Background()

	newOrder := func(t *testing.T, env *testEnv, in CreateOrderInput) *domain.Order {
		t.Helper()
		result, err := env.svc.CreateOrder(ctx, in)
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		return result.Order
	}

	twoSellers := func() CreateOrderInput {
		return codInput(item(productTea, sellerA, 1, "4.50"), item(productPot, sellerB, 1, "30.00"))
	}

	t.Run("stamps the order and suborder with the write time", func(t *testing.T) {
		env := newTestEnv(t)
		order := newOrder(t, env, twoSellers())

		at := time.Date(2025, 4, 2, 8, 15, 0, 0, time.UTC)
		env.svc.clock = clock.NewFixed(at)

		updated, err := env.svc.UpdateSuborderStatus(ctx, order.ID, order.Suborders[1].ID, domain.OrderStatusShipped)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !updated.StatusUpdatedAt.Equal(at) {
			t.Errorf("order status_updated_at = %v, want %v", updated.StatusUpdatedAt, at)
		}
		if sub := updated.Suborder(order.Suborders[1].ID); !sub.StatusUpdatedAt.Equal(at) {
			t.Errorf("suborder status_updated_at = %v, want %v", sub.StatusUpdatedAt, at)
		}
		if sub := updated.Suborder(order.Suborders[0].ID); sub.StatusUpdatedAt.Equal(at) {
			t.Error("untouched suborder should keep its timestamp")
		}
	})

	t.Run("recomputes aggregate status", func(t *testing.T) {
		env := newTestEnv(t)
		order := newOrder(t, env, twoSellers())
		subA, subB := order.Suborders[0].ID, order.Suborders[1].ID

		steps := []struct {
			suborder string
			status   domain.OrderStatus
			want     domain.OrderStatus
		}{
			{subA, domain.OrderStatusProcessing, domain.OrderStatusProcessing},
			{subA, domain.OrderStatusShipped, domain.OrderStatusShipped},
			{subB, domain.OrderStatusShipped, domain.OrderStatusShipped},
			{subA, domain.OrderStatusDelivered, domain.OrderStatusShipped},
			{subB, domain.OrderStatusDelivered, domain.OrderStatusDelivered},
		}

		for _, step := range steps {
			updated, err := env.svc.UpdateSuborderStatus(ctx, order.ID, step.suborder, step.status)
			if err != nil {
				t.Fatalf("update %s to %s: %v", step.suborder, step.status, err)
			}
			if updated.Status != step.want {
				t.Errorf("after %s -> %s: order status = %s, want %s", step.suborder, step.status, updated.Status, step.want)
			}
		}

		final, err := env.svc.GetOrder(ctx, order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if final.PaymentStatus != domain.PaymentStatusPaid {
			t.Errorf("delivered cash order payment = %s, want paid", final.PaymentStatus)
		}
	})

	t.Run("mixed cancelled and pending stays processing", func(t *testing.T) {
		env := newTestEnv(t)
		order := newOrder(t, env, twoSellers())

		updated, err := env.svc.UpdateSuborderStatus(ctx, order.ID, order.Suborders[0].ID, domain.OrderStatusCancelled)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != domain.OrderStatusProcessing {
			t.Errorf("order status = %s, want processing", updated.Status)
		}
		if updated.PaymentStatus != domain.PaymentStatusPending {
			t.Errorf("payment status = %s, want pending", updated.PaymentStatus)
		}
	})

	t.Run("rejects invalid status", func(t *testing.T) {
		env := newTestEnv(t)
		order := newOrder(t, env, twoSellers())

		_, err := env.svc.UpdateSuborderStatus(ctx, order.ID, order.Suborders[0].ID, "returned")
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown suborder", func(t *testing.T) {
		env := newTestEnv(t)
		order := newOrder(t, env, twoSellers())

		_, err := env.svc.UpdateSuborderStatus(ctx, order.ID, missingID, domain.OrderStatusShipped)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.UpdateSuborderStatus(ctx, missingID, missingID, domain.OrderStatusShipped)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent updates to different suborders are not lost", func(t *testing.T) {
		env := newTestEnv(t)
		order := newOrder(t, env, twoSellers())

		var wg sync.WaitGroup
		for _, sub := range order.Suborders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := env.svc.UpdateSuborderStatus(ctx, order.ID, sub.ID, domain.OrderStatusDelivered); err != nil {
					t.Errorf("update %s: %v", sub.ID, err)
				}
			}()
		}
		wg.Wait()

		final, err := env.svc.GetOrder(ctx, order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if final.Status != domain.OrderStatusDelivered {
			t.Errorf("order status = %s, want delivered", final.Status)
		}
	})
}

func TestService_DeleteOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("restores stock and removes a pending cash order", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.svc.CreateOrder(ctx, codInput(item(productTea, sellerA, 3, "4.50"), item(productPot, sellerB, 2, "30.00")))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		if err := env.svc.DeleteOrder(ctx, result.Order.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := env.catalog.stock(productTea, sellerA); got != 10 {
			t.Errorf("tea stock = %d, want 10", got)
		}
		if got := env.catalog.stock(productPot, sellerB); got != 2 {
			t.Errorf("teapot stock = %d, want 2", got)
		}
		if env.store.len() != 0 {
			t.Errorf("expected order removed, store has %d", env.store.len())
		}
		if len(env.refunder.refs) != 0 {
			t.Errorf("cash order should not be refunded")
		}
	})

	t.Run("refunds a card order", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.svc.CreateOrder(ctx, cardInput(item(productTea, sellerA, 1, "4.50")))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		if err := env.svc.DeleteOrder(ctx, result.Order.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(env.refunder.refs) != 1 || env.refunder.refs[0] != "pi_123" {
			t.Errorf("expected refund of pi_123, got %v", env.refunder.refs)
		}
	})

	t.Run("refund failure keeps the order and its reservation", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.svc.CreateOrder(ctx, cardInput(item(productTea, sellerA, 4, "4.50")))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		env.refunder.err = errors.New("gateway timeout")

		err = env.svc.DeleteOrder(ctx, result.Order.ID)
		if !errors.Is(err, domain.ErrRefund) {
			t.Fatalf("expected ErrRefund, got %v", err)
		}
		if env.store.len() != 1 {
			t.Errorf("expected order kept, store has %d", env.store.len())
		}
		if got := env.catalog.stock(productTea, sellerA); got != 6 {
			t.Errorf("tea stock = %d, want 6", got)
		}
	})

	t.Run("restore failure keeps the order", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.svc.CreateOrder(ctx, codInput(item(productTea, sellerA, 2, "4.50"), item(productPot, sellerB, 1, "30.00")))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		env.catalog.failRelease[productPot] = errors.New("connection refused")

		err = env.svc.DeleteOrder(ctx, result.Order.ID)
		if !errors.Is(err, domain.ErrStockRestore) {
			t.Fatalf("expected ErrStockRestore, got %v", err)
		}
		if env.store.len() != 1 {
			t.Errorf("expected order kept, store has %d", env.store.len())
		}
		if got := env.catalog.stock(productTea, sellerA); got != 8 {
			t.Errorf("tea stock = %d, want 8", got)
		}
	})

	t.Run("only pending orders can be deleted", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.svc.CreateOrder(ctx, codInput(item(productTea, sellerA, 1, "4.50")))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if _, err := env.svc.UpdateSuborderStatus(ctx, result.Order.ID, result.Order.Suborders[0].ID, domain.OrderStatusShipped); err != nil {
			t.Fatalf("update status: %v", err)
		}

		err = env.svc.DeleteOrder(ctx, result.Order.ID)
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		if got := env.catalog.stock(productTea, sellerA); got != 9 {
			t.Errorf("tea stock = %d, want 9", got)
		}
	})

	t.Run("status write during deletion waits for it", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.svc.CreateOrder(ctx, codInput(item(productTea, sellerA, 3, "4.50")))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		updated := make(chan error, 1)
		var once sync.Once
		env.catalog.onRelease = func() {
			once.Do(func() {
				go func() {
					_, err := env.svc.UpdateSuborderStatus(ctx, result.Order.ID, result.Order.Suborders[0].ID, domain.OrderStatusProcessing)
					updated <- err
				}()
			})
		}

		if err := env.svc.DeleteOrder(ctx, result.Order.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := <-updated; !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected the status write to find the order gone, got %v", err)
		}
		if got := env.catalog.stock(productTea, sellerA); got != 10 {
			t.Errorf("tea stock = %d, want 10", got)
		}
		if env.store.len() != 0 {
			t.Errorf("expected order removed, store has %d", env.store.len())
		}
	})

	t.Run("failed final delete keeps the reservation and records the refund", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.svc.CreateOrder(ctx, cardInput(item(productTea, sellerA, 4, "4.50")))
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		env.store.deleteErr = errors.New("connection reset")

		if err := env.svc.DeleteOrder(ctx, result.Order.ID); err == nil {
			t.Fatal("expected the delete to fail")
		}
		if env.store.len() != 1 {
			t.Fatalf("expected order kept, store has %d", env.store.len())
		}
		if got := env.catalog.stock(productTea, sellerA); got != 6 {
			t.Errorf("tea stock = %d, want 6", got)
		}
		kept, err := env.store.GetByID(ctx, result.Order.ID)
		if err != nil {
			t.Fatalf("get kept order: %v", err)
		}
		if kept.PaymentStatus != domain.PaymentStatusRefunded {
			t.Errorf("payment status = %s, want refunded", kept.PaymentStatus)
		}

		env.store.deleteErr = nil
		if err := env.svc.DeleteOrder(ctx, result.Order.ID); err != nil {
			t.Fatalf("retry: unexpected error: %v", err)
		}
		if got := env.catalog.stock(productTea, sellerA); got != 10 {
			t.Errorf("tea stock after retry = %d, want 10", got)
		}
		if len(env.refunder.refs) != 1 {
			t.Errorf("expected a single refund, got %v", env.refunder.refs)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.svc.DeleteOrder(ctx, missingID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.svc.DeleteOrder(ctx, "order-1"); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestService_Views(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.svc.ListUserOrders(ctx, buyerID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any order, got %v", err)
	}
	if _, err := env.svc.SellerSuborders(ctx, sellerA); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any suborder, got %v", err)
	}

	first, err := env.svc.CreateOrder(ctx, codInput(item(productTea, sellerA, 1, "4.50")))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := env.svc.CreateOrder(ctx, codInput(item(productMug, sellerA, 1, "12.00"), item(productPot, sellerB, 1, "30.00")))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := env.svc.UpdateSuborderStatus(ctx, second.Order.ID, second.Order.SuborderFor(sellerA).ID, domain.OrderStatusShipped); err != nil {
		t.Fatalf("update status: %v", err)
	}

	t.Run("user orders newest first", func(t *testing.T) {
		orders, err := env.svc.ListUserOrders(ctx, buyerID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(orders) != 2 {
			t.Fatalf("expected 2 orders, got %d", len(orders))
		}
		if orders[0].ID != second.Order.ID || orders[1].ID != first.Order.ID {
			t.Errorf("orders not newest first")
		}
	})

	t.Run("seller suborders", func(t *testing.T) {
		views, err := env.svc.SellerSuborders(ctx, sellerA)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(views) != 2 {
			t.Fatalf("expected 2 suborders for seller A, got %d", len(views))
		}
		if views[0].OrderID != second.Order.ID {
			t.Errorf("seller suborders not newest first")
		}
		for _, v := range views {
			if v.Suborder.SellerID != sellerA {
				t.Errorf("suborder %s belongs to %s", v.SuborderID, v.Suborder.SellerID)
			}
		}
	})

	t.Run("seller stats", func(t *testing.T) {
		stats, err := env.svc.SellerStats(ctx, sellerA)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := domain.SellerStats{TotalOrders: 2, Pending: 1, Shipped: 1}
		if stats != want {
			t.Errorf("stats = %+v, want %+v", stats, want)
		}

		empty, err := env.svc.SellerStats(ctx, missingID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if empty != (domain.SellerStats{}) {
			t.Errorf("expected zero stats, got %+v", empty)
		}
	})

	t.Run("get rejects malformed id", func(t *testing.T) {
		if _, err := env.svc.GetOrder(ctx, "abc"); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}
