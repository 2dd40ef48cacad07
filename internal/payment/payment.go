package payment

import (
	"fmt"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

const StatusSucceeded = "succeeded"

// Confirmation is the caller-supplied result of a capture already performed
// against the gateway.
type Confirmation struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Validate checks that a gateway payment method carries a succeeded
// confirmation. Methods settled outside the gateway need none.
func Validate(method domain.PaymentMethod, c *Confirmation) error {
	if !method.UsesGateway() {
		return nil
	}
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: payment confirmation required for %s payments", domain.ErrPayment, method)
	}
	if c.Status != StatusSucceeded {
		return fmt.Errorf("%w: payment %s has status %q", domain.ErrPayment, c.ID, c.Status)
	}
	return nil
}
