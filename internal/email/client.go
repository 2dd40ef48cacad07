package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

type Message struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Client posts messages to the mail service.
type Client struct {
	baseURL    string
	from       string
	httpClient *http.Client
}

func NewClient(baseURL, from string, client *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		from:       from,
		httpClient: client,
	}
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = c.from
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

// SendOrderConfirmation mails the buyer a summary of a placed order.
func (c *Client) SendOrderConfirmation(ctx context.Context, event domain.OrderConfirmationEvent) error {
	return c.Send(ctx, ConfirmationMessage(event))
}

func ConfirmationMessage(event domain.OrderConfirmationEvent) Message {
	var b strings.Builder
	name := event.BuyerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\nThank you for your order %s.\n\n", name, event.OrderID)
	for _, item := range event.Items {
		label := item.ProductName
		if label == "" {
			label = item.ProductID
		}
		fmt.Fprintf(&b, "- %s x%d @ %s\n", label, item.Quantity, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s (%s)\n", event.Total.StringFixed(2), event.PaymentMethod)
	if event.SellerCount > 1 {
		fmt.Fprintf(&b, "Your items ship from %d sellers and may arrive separately.\n", event.SellerCount)
	}

	return Message{
		To:      event.To,
		Subject: "Order Confirmation: " + event.OrderID,
		Body:    b.String(),
	}
}
