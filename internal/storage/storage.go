// Package storage defines the transactional boundary used by checkout.
// The unit of work is passed explicitly through the call chain so that
// atomicity is visible in interfaces rather than hidden in shared state.
package storage

import (
	"context"

	"github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/domain/order"
)

// Tx exposes repositories bound to one in-flight transaction. Everything
// done through a Tx commits or rolls back as a unit.
type Tx interface {
	Carts() cart.Repository
	Orders() order.Repository
	Products() catalog.Repository
}

// UnitOfWork runs fn inside a transaction. A nil return from fn commits;
// any error rolls everything back and is returned unchanged.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the full persistence surface: a unit of work for mutating
// flows plus auto-committed repositories for plain reads.
type Store interface {
	UnitOfWork
	Carts() cart.Repository
	Orders() order.Repository
	Products() catalog.Repository
}
