package domain

import (
	"errors"
	"fmt"
)

// Error classes. Operations wrap one of these with a descriptive message;
// callers classify with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrSellerMismatch    = errors.New("seller not associated with product")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPayment           = errors.New("payment rejected")
	ErrRefund            = errors.New("refund failed")
	ErrStockUpdate       = errors.New("stock update failed")
	ErrStockRestore      = errors.New("stock restore failed")
	ErrInvalidState      = errors.New("invalid order state")
)

var (
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
	ErrSuborderNotFound = fmt.Errorf("suborder %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCartNotFound     = fmt.Errorf("cart %w", ErrNotFound)
)
