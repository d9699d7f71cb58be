package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("catalog: product not found")
	ErrInvalidQuantity   = errors.New("catalog: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

// Product is the catalog entity consumed by checkout. Price is in minor
// currency units. Stock is the only field contended across requests and
// must only be mutated inside the transaction that owns the reservation.
type Product struct {
	ID        string
	Name      string
	Price     int64
	Stock     int
	UpdatedAt time.Time
}

// Reserve decrements stock for an order line. Stock never goes negative;
// a reservation that would do so fails with ErrInsufficientStock and
// leaves the product untouched.
func (p *Product) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Stock {
		return ErrInsufficientStock
	}
	p.Stock -= quantity
	p.touch()
	return nil
}

// Restore reverses a reservation on an abort path.
func (p *Product) Restore(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += quantity
	p.touch()
	return nil
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
