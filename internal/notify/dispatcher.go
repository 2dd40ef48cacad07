package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
	"github.com/joao-fontenele/marketplace-orderflow/internal/telemetry"
)

// Sender delivers one order confirmation.
type Sender interface {
	Send(ctx context.Context, event domain.OrderConfirmationEvent) error
}

// Dispatcher queues order confirmations and delivers them from a single
// background goroutine. Delivery is at most once: a full queue drops the
// notification and send failures are only logged.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	metrics *telemetry.OrderMetrics
	timeout time.Duration

	queue     chan domain.OrderConfirmationEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type Option func(*Dispatcher)

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan domain.OrderConfirmationEvent, n)
		}
	}
}

func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithMetrics(m *telemetry.OrderMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher starts the delivery goroutine. Call Close to drain and stop it.
func NewDispatcher(sender Sender, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		logger:  logger,
		timeout: 10 * time.Second,
		queue:   make(chan domain.OrderConfirmationEvent, 256),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	go d.run()
	return d
}

// Dispatch enqueues event without blocking. It reports whether the event was
// accepted.
func (d *Dispatcher) Dispatch(event domain.OrderConfirmationEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped, dispatcher closed", "order_id", event.OrderID)
		d.metrics.Notification(context.Background(), "dropped")
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.logger.Warn("notification dropped, queue full", "order_id", event.OrderID)
		d.metrics.Notification(context.Background(), "dropped")
		return false
	}
}

// Close stops accepting notifications, delivers what is already queued and
// waits for the delivery goroutine to exit or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event domain.OrderConfirmationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sender panicked", "order_id", event.OrderID, "panic", r)
			d.metrics.Notification(ctx, "failed")
		}
	}()

	if err := d.sender.Send(ctx, event); err != nil {
		d.logger.Error("failed to send order confirmation", "error", err, "order_id", event.OrderID)
		d.metrics.Notification(ctx, "failed")
		return
	}

	d.logger.Info("order confirmation sent", "order_id", event.OrderID, "to", event.To)
	d.metrics.Notification(ctx, "sent")
}
