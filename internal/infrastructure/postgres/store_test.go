package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/domain/order"
	"github.com/greengrove/plantshop/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("plantshop_test"),
		pgcontainer.WithUsername("testuser"),
		pgcontainer.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := NewStore(&Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "plantshop_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.RunMigrations("./migrations"))
	return store
}

func seedProduct(t *testing.T, store *Store, id string, price int64, stock int) {
	t.Helper()
	_, err := store.db.Exec(
		`INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4)`,
		id, "Test Plant "+id, price, stock)
	require.NoError(t, err)
}

func TestProductRepo_GetAndUpdateStock(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "monstera", 10000, 5)

	p, err := store.Products().Get(ctx, "monstera")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), p.Price)
	assert.Equal(t, 5, p.Stock)

	_, err = store.Products().Get(ctx, "ghost-orchid")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		locked, err := tx.Products().GetForUpdate(ctx, "monstera")
		if err != nil {
			return err
		}
		if err := locked.Reserve(2); err != nil {
			return err
		}
		return tx.Products().UpdateStock(ctx, locked)
	})
	require.NoError(t, err)

	p, err = store.Products().Get(ctx, "monstera")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}

func TestOrderRepo_InsertGetAndUpdateStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "monstera", 10000, 5)
	seedProduct(t, store, "pothos", 4500, 8)

	o, err := order.New("order-1", "user-1", "12 Fern St, Hanoi", order.MethodVNPay, "ring the bell",
		[]order.Line{
			{ProductID: "monstera", Quantity: 2, UnitPrice: 10000},
			{ProductID: "pothos", Quantity: 1, UnitPrice: 4500},
		})
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Orders().Insert(ctx, o)
	}))

	got, err := store.Orders().Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, int64(24500), got.TotalAmount)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "order-1", got.Lines[0].OrderID)

	_, err = store.Orders().Get(ctx, "order-404")
	assert.ErrorIs(t, err, order.ErrNotFound)

	changed, err := got.Finalize(order.OutcomeCompleted)
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Orders().UpdateStatus(ctx, got)
	}))

	got, err = store.Orders().Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)
}

func TestCartRepo_AddAccumulatesAndClears(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "monstera", 10000, 5)

	require.NoError(t, store.Carts().Add(ctx, "user-1", cart.Line{ProductID: "monstera", Quantity: 1}))
	require.NoError(t, store.Carts().Add(ctx, "user-1", cart.Line{ProductID: "monstera", Quantity: 2}))

	lines, err := store.Carts().Lines(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	require.NoError(t, store.Carts().SetQuantity(ctx, "user-1", "monstera", 1))
	lines, err = store.Carts().Lines(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, lines[0].Quantity)

	assert.ErrorIs(t, store.Carts().Remove(ctx, "user-1", "pothos"), cart.ErrLineNotFound)

	require.NoError(t, store.Carts().Clear(ctx, "user-1"))
	lines, err = store.Carts().Lines(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "monstera", 10000, 5)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.Products().GetForUpdate(ctx, "monstera")
		if err != nil {
			return err
		}
		if err := p.Reserve(5); err != nil {
			return err
		}
		if err := tx.Products().UpdateStock(ctx, p); err != nil {
			return err
		}
		o, err := order.New("order-1", "user-1", "addr", order.MethodCashOnDelivery, "",
			[]order.Line{{ProductID: "monstera", Quantity: 5, UnitPrice: 10000}})
		if err != nil {
			return err
		}
		if err := tx.Orders().Insert(ctx, o); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := store.Products().Get(ctx, "monstera")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	_, err = store.Orders().Get(ctx, "order-1")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestWithinTx_RowLockPreventsOversell(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "pothos", 4500, 5)

	const workers = 10
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				p, err := tx.Products().GetForUpdate(ctx, "pothos")
				if err != nil {
					return err
				}
				if err := p.Reserve(1); err != nil {
					return err
				}
				return tx.Products().UpdateStock(ctx, p)
			})
			if err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, won)
	p, err := store.Products().Get(ctx, "pothos")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}
