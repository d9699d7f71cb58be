// Package memory implements storage.Store over process-local maps. The
// store mutex is held for the whole transaction, which gives the same
// read-then-decrement atomicity the postgres adapter gets from row locks.
// Used by tests and the dev profile.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/domain/order"
	"github.com/greengrove/plantshop/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
	orders   map[string]*order.Order
	carts    map[string][]cart.Line
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]*catalog.Product),
		orders:   make(map[string]*order.Order),
		carts:    make(map[string][]cart.Line),
	}
}

var _ storage.Store = (*Store)(nil)

// SeedProduct loads a catalog entry; intended for tests and dev bootstrap.
func (s *Store) SeedProduct(p *catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p.Clone()
}

func (s *Store) Carts() cart.Repository       { return &cartRepo{s: s} }
func (s *Store) Orders() order.Repository     { return &orderRepo{s: s} }
func (s *Store) Products() catalog.Repository { return &productRepo{s: s} }

// WithinTx serializes against every other transaction and auto-committed
// access. fn works on staged clones; only a nil return merges them back,
// so a failed checkout leaves no trace.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &memTx{
		s:        s,
		products: make(map[string]*catalog.Product),
		orders:   make(map[string]*order.Order),
		carts:    make(map[string][]cart.Line),
	}

	if err := fn(ctx, t); err != nil {
		return err
	}

	t.commit()
	return nil
}

// memTx stages mutations until commit.
type memTx struct {
	s        *Store
	products map[string]*catalog.Product
	orders   map[string]*order.Order
	carts    map[string][]cart.Line
}

func (t *memTx) Carts() cart.Repository       { return &cartRepo{s: t.s, tx: t} }
func (t *memTx) Orders() order.Repository     { return &orderRepo{s: t.s, tx: t} }
func (t *memTx) Products() catalog.Repository { return &productRepo{s: t.s, tx: t} }

func (t *memTx) commit() {
	for id, p := range t.products {
		t.s.products[id] = p
	}
	for id, o := range t.orders {
		t.s.orders[id] = o
	}
	for userID, lines := range t.carts {
		if len(lines) == 0 {
			delete(t.s.carts, userID)
			continue
		}
		t.s.carts[userID] = lines
	}
}

func (t *memTx) product(id string) (*catalog.Product, error) {
	if p, ok := t.products[id]; ok {
		return p, nil
	}
	base, ok := t.s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	staged := base.Clone()
	t.products[id] = staged
	return staged, nil
}

func (t *memTx) cartLines(userID string) []cart.Line {
	if lines, ok := t.carts[userID]; ok {
		return lines
	}
	return append([]cart.Line(nil), t.s.carts[userID]...)
}

type productRepo struct {
	s  *Store
	tx *memTx
}

func (r *productRepo) Get(ctx context.Context, id string) (*catalog.Product, error) {
	_ = ctx
	if r.tx != nil {
		p, err := r.tx.product(id)
		if err != nil {
			return nil, err
		}
		return p.Clone(), nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *productRepo) GetForUpdate(ctx context.Context, id string) (*catalog.Product, error) {
	_ = ctx
	if r.tx == nil {
		return nil, fmt.Errorf("memory: GetForUpdate outside a transaction")
	}
	p, err := r.tx.product(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (r *productRepo) UpdateStock(ctx context.Context, product *catalog.Product) error {
	_ = ctx
	if r.tx == nil {
		return fmt.Errorf("memory: UpdateStock outside a transaction")
	}
	if _, ok := r.tx.products[product.ID]; !ok {
		if _, exists := r.tx.s.products[product.ID]; !exists {
			return catalog.ErrNotFound
		}
	}
	r.tx.products[product.ID] = product.Clone()
	return nil
}

type orderRepo struct {
	s  *Store
	tx *memTx
}

func (r *orderRepo) Insert(ctx context.Context, o *order.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("memory: order id is required")
	}

	insert := func() error {
		if r.tx != nil {
			if _, ok := r.tx.orders[o.ID]; ok {
				return fmt.Errorf("memory: order %s already exists", o.ID)
			}
			if _, ok := r.s.orders[o.ID]; ok {
				return fmt.Errorf("memory: order %s already exists", o.ID)
			}
			r.tx.orders[o.ID] = o.Clone()
			return nil
		}
		if _, ok := r.s.orders[o.ID]; ok {
			return fmt.Errorf("memory: order %s already exists", o.ID)
		}
		r.s.orders[o.ID] = o.Clone()
		return nil
	}

	if r.tx != nil {
		return insert()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return insert()
}

func (r *orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	_ = ctx
	get := func() (*order.Order, error) {
		if r.tx != nil {
			if o, ok := r.tx.orders[id]; ok {
				return o.Clone(), nil
			}
		}
		o, ok := r.s.orders[id]
		if !ok {
			return nil, order.ErrNotFound
		}
		return o.Clone(), nil
	}

	if r.tx != nil {
		return get()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return get()
}

func (r *orderRepo) UpdateStatus(ctx context.Context, o *order.Order) error {
	_ = ctx
	update := func() error {
		if r.tx != nil {
			if _, ok := r.tx.orders[o.ID]; !ok {
				if _, exists := r.s.orders[o.ID]; !exists {
					return order.ErrNotFound
				}
			}
			r.tx.orders[o.ID] = o.Clone()
			return nil
		}
		if _, ok := r.s.orders[o.ID]; !ok {
			return order.ErrNotFound
		}
		r.s.orders[o.ID] = o.Clone()
		return nil
	}

	if r.tx != nil {
		return update()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return update()
}

type cartRepo struct {
	s  *Store
	tx *memTx
}

func (r *cartRepo) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	_ = ctx
	if r.tx != nil {
		return append([]cart.Line(nil), r.tx.cartLines(userID)...), nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]cart.Line(nil), r.s.carts[userID]...), nil
}

func (r *cartRepo) Add(ctx context.Context, userID string, line cart.Line) error {
	_ = ctx
	if line.Quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	return r.mutate(userID, func(lines []cart.Line) ([]cart.Line, error) {
		for i := range lines {
			if lines[i].ProductID == line.ProductID {
				lines[i].Quantity += line.Quantity
				return lines, nil
			}
		}
		return append(lines, line), nil
	})
}

func (r *cartRepo) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	_ = ctx
	if quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	return r.mutate(userID, func(lines []cart.Line) ([]cart.Line, error) {
		for i := range lines {
			if lines[i].ProductID == productID {
				lines[i].Quantity = quantity
				return lines, nil
			}
		}
		return nil, cart.ErrLineNotFound
	})
}

func (r *cartRepo) Remove(ctx context.Context, userID, productID string) error {
	_ = ctx
	return r.mutate(userID, func(lines []cart.Line) ([]cart.Line, error) {
		for i := range lines {
			if lines[i].ProductID == productID {
				return append(lines[:i], lines[i+1:]...), nil
			}
		}
		return nil, cart.ErrLineNotFound
	})
}

func (r *cartRepo) Clear(ctx context.Context, userID string) error {
	_ = ctx
	return r.mutate(userID, func([]cart.Line) ([]cart.Line, error) {
		return nil, nil
	})
}

func (r *cartRepo) mutate(userID string, fn func([]cart.Line) ([]cart.Line, error)) error {
	if r.tx != nil {
		lines, err := fn(r.tx.cartLines(userID))
		if err != nil {
			return err
		}
		if lines == nil {
			lines = []cart.Line{}
		}
		r.tx.carts[userID] = lines
		return nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lines, err := fn(append([]cart.Line(nil), r.s.carts[userID]...))
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		delete(r.s.carts, userID)
		return nil
	}
	r.s.carts[userID] = lines
	return nil
}
