package order

import "context"

type Repository interface {
	// Insert persists a new order together with its lines.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus persists the status and UpdatedAt of a finalized order.
	UpdateStatus(ctx context.Context, order *Order) error
}
