package cart

import "context"

type Repository interface {
	// Lines returns the user's current selections. An empty slice means an
	// empty cart; callers decide whether that is an error.
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Add increments the quantity of an existing line or creates a new one.
	Add(ctx context.Context, userID string, line Line) error
	// SetQuantity replaces the quantity of an existing line.
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	// Remove deletes a single line.
	Remove(ctx context.Context, userID, productID string) error
	// Clear deletes every line for the user.
	Clear(ctx context.Context, userID string) error
}
