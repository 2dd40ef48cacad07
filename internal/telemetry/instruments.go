package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrderMetrics holds the order engine's domain instruments. A nil
// *OrderMetrics records nothing.
type OrderMetrics struct {
	created       metric.Int64Counter
	failures      metric.Int64Counter
	reservations  metric.Int64Counter
	notifications metric.Int64Counter
	statusChanges metric.Int64Counter
}

func NewOrderMetrics(meter metric.Meter) (*OrderMetrics, error) {
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted with all stock reserved."))
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("orders.create.failures",
		metric.WithDescription("Order creation attempts rejected or rolled back, by reason."))
	if err != nil {
		return nil, err
	}

	reservations, err := meter.Int64Counter("orders.stock.reservations",
		metric.WithDescription("Per line item stock operations, by operation and result."))
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter("orders.notifications",
		metric.WithDescription("Order confirmation notifications, by outcome."))
	if err != nil {
		return nil, err
	}

	statusChanges, err := meter.Int64Counter("orders.suborder.status_changes",
		metric.WithDescription("Suborder status writes, by new status."))
	if err != nil {
		return nil, err
	}

	return &OrderMetrics{
		created:       created,
		failures:      failures,
		reservations:  reservations,
		notifications: notifications,
		statusChanges: statusChanges,
	}, nil
}

func (m *OrderMetrics) OrderCreated(ctx context.Context, suborders int) {
	if m == nil {
		return
	}
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.Int("suborders", suborders)))
}

func (m *OrderMetrics) OrderFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *OrderMetrics) Stock(ctx context.Context, op, result string) {
	if m == nil {
		return
	}
	m.reservations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}

func (m *OrderMetrics) Notification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *OrderMetrics) StatusChanged(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
