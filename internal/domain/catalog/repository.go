package catalog

import "context"

type Repository interface {
	// Get returns the product for read-only display paths.
	Get(ctx context.Context, id string) (*Product, error)
	// GetForUpdate re-reads the product inside the active transaction,
	// holding it against concurrent reservations until commit or abort.
	GetForUpdate(ctx context.Context, id string) (*Product, error)
	// UpdateStock persists a stock mutation made through Reserve/Restore.
	UpdateStock(ctx context.Context, product *Product) error
}
