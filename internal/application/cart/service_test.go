package cart_test

import (
	"context"
	"testing"

	cartapp "github.com/greengrove/plantshop/internal/application/cart"
	domcart "github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/infrastructure/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*cartapp.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SeedProduct(&catalog.Product{ID: "monstera", Name: "Monstera Deliciosa", Price: 10000, Stock: 5})
	store.SeedProduct(&catalog.Product{ID: "pothos", Name: "Golden Pothos", Price: 4500, Stock: 8})
	return cartapp.NewService(store.Carts(), store.Products()), store
}

func TestAdd_AccumulatesQuantity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "user-1", "monstera", 1))
	require.NoError(t, svc.Add(ctx, "user-1", "monstera", 2))

	view, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)
	assert.Equal(t, int64(30000), view.TotalAmount)
}

func TestAdd_UnknownProductRejected(t *testing.T) {
	svc, _ := newService(t)

	err := svc.Add(context.Background(), "user-1", "ghost-orchid", 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestAdd_InvalidQuantityRejected(t *testing.T) {
	svc, _ := newService(t)

	err := svc.Add(context.Background(), "user-1", "monstera", 0)
	assert.ErrorIs(t, err, domcart.ErrInvalidQuantity)
}

func TestGet_PricesReflectCurrentCatalog(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "user-1", "monstera", 2))
	store.SeedProduct(&catalog.Product{ID: "monstera", Name: "Monstera Deliciosa", Price: 12000, Stock: 5})

	view, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), view.Lines[0].UnitPrice)
	assert.Equal(t, int64(24000), view.TotalAmount)
}

func TestUpdate_ZeroQuantityRemovesLine(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "user-1", "monstera", 2))
	require.NoError(t, svc.Update(ctx, "user-1", "monstera", 0))

	view, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestUpdate_MissingLine(t *testing.T) {
	svc, _ := newService(t)

	err := svc.Update(context.Background(), "user-1", "monstera", 2)
	assert.ErrorIs(t, err, domcart.ErrLineNotFound)
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "user-1", "monstera", 1))
	require.NoError(t, svc.Add(ctx, "user-2", "pothos", 4))

	view, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "monstera", view.Lines[0].ProductID)

	require.NoError(t, svc.Clear(ctx, "user-1"))
	view, err = svc.Get(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(18000), view.TotalAmount)
}
