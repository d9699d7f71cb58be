package cart

import "errors"

var (
	ErrLineNotFound    = errors.New("cart: line not found")
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")
)

// Line is a single pending selection in a user's cart. Lines are ephemeral:
// they exist between add-to-cart and either checkout or an explicit clear.
type Line struct {
	ProductID string
	Quantity  int
}

func NewLine(productID string, quantity int) (Line, error) {
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	return Line{ProductID: productID, Quantity: quantity}, nil
}
