package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

// Client talks to the payment gateway's refund API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, client *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: client,
	}
}

type refundRequest struct {
	PaymentIntent string `json:"payment_intent"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Refund refunds the full captured amount of the payment identified by ref.
func (c *Client) Refund(ctx context.Context, ref string) error {
	data, err := json.Marshal(refundRequest{PaymentIntent: ref})
	if err != nil {
		return fmt.Errorf("marshal refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/refunds", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: payment %s: %w", domain.ErrRefund, ref, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%w: read gateway response: %w", domain.ErrRefund, err)
	}

	var out refundResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != "" {
			return fmt.Errorf("%w: payment %s: gateway returned status %d: %s", domain.ErrRefund, ref, resp.StatusCode, out.Error)
		}
		return fmt.Errorf("%w: payment %s: gateway returned status %d", domain.ErrRefund, ref, resp.StatusCode)
	}

	if decodeErr != nil {
		return fmt.Errorf("%w: payment %s: decode gateway response: %w", domain.ErrRefund, ref, decodeErr)
	}

	if out.Status == "failed" || out.Status == "canceled" {
		return fmt.Errorf("%w: payment %s: refund %s is %s", domain.ErrRefund, ref, out.ID, out.Status)
	}

	return nil
}
