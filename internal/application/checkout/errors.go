package checkout

import (
	"errors"
	"fmt"

	"github.com/greengrove/plantshop/internal/domain/catalog"
)

var (
	ErrEmptyCart            = errors.New("checkout: cart is empty, nothing to check out")
	ErrUnknownPaymentMethod = errors.New("checkout: unknown payment method")
)

// InsufficientStockError aborts the whole checkout transaction and names
// the product the cart oversubscribed. errors.Is matches
// catalog.ErrInsufficientStock through it.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("checkout: insufficient stock for product %s (requested %d, available %d)",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return catalog.ErrInsufficientStock
}
