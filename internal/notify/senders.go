package notify

import (
	"context"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
	"github.com/joao-fontenele/marketplace-orderflow/internal/email"
)

type publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// KafkaSender hands confirmations to the notification worker through Kafka.
type KafkaSender struct {
	producer publisher
}

func NewKafkaSender(producer publisher) *KafkaSender {
	return &KafkaSender{producer: producer}
}

func (s *KafkaSender) Send(ctx context.Context, event domain.OrderConfirmationEvent) error {
	return s.producer.Publish(ctx, event.OrderID, event)
}

// EmailSender mails confirmations directly, for deployments without Kafka.
type EmailSender struct {
	client *email.Client
}

func NewEmailSender(client *email.Client) *EmailSender {
	return &EmailSender{client: client}
}

func (s *EmailSender) Send(ctx context.Context, event domain.OrderConfirmationEvent) error {
	return s.client.SendOrderConfirmation(ctx, event)
}
