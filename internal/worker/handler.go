package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

type Mailer interface {
	SendOrderConfirmation(ctx context.Context, event domain.OrderConfirmationEvent) error
}

// NotificationHandler turns order confirmation events into buyer emails.
type NotificationHandler struct {
	mailer Mailer
	logger *slog.Logger
}

func NewNotificationHandler(mailer Mailer, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		mailer: mailer,
		logger: logger,
	}
}

var errMissingRecipient = errors.New("event has no recipient")

func (h *NotificationHandler) Handle(ctx context.Context, key string, payload []byte) error {
	var event domain.OrderConfirmationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order confirmation event: %w", err)
	}

	if event.To == "" {
		return fmt.Errorf("order %s: %w", event.OrderID, errMissingRecipient)
	}

	h.logger.Info("processing order confirmation", "order_id", event.OrderID, "buyer_id", event.BuyerID, "key", key)

	if err := h.mailer.SendOrderConfirmation(ctx, event); err != nil {
		return fmt.Errorf("send confirmation email for order %s: %w", event.OrderID, err)
	}

	h.logger.Info("order confirmation sent", "order_id", event.OrderID, "items", len(event.Items))
	return nil
}

// HandleError logs a message the worker gave up on. Delivery is at most
// once, so the offset is committed regardless.
func (h *NotificationHandler) HandleError(_ context.Context, msg kafka.Message, err error) {
	h.logger.Error("dropping order confirmation",
		"error", err,
		"key", string(msg.Key),
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
}
