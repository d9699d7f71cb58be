package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/greengrove/plantshop/internal/application/checkout"
	"github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/domain/order"
	domoutbox "github.com/greengrove/plantshop/internal/domain/outbox"
	"github.com/greengrove/plantshop/internal/infrastructure/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct {
	n int
}

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("order-%d", s.n)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) published() []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domoutbox.Event(nil), p.events...)
}

type stubGateway struct {
	url string
	err error
}

func (g *stubGateway) CreatePaymentURL(o *order.Order, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.url + "?ref=" + o.ID, nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	store.SeedProduct(&catalog.Product{ID: "monstera", Name: "Monstera deliciosa", Price: 10000, Stock: 5})
	store.SeedProduct(&catalog.Product{ID: "pothos", Name: "Golden pothos", Price: 4500, Stock: 1})
	return store
}

func addLine(t *testing.T, store *memory.Store, userID, productID string, qty int) {
	t.Helper()
	require.NoError(t, store.Carts().Add(context.Background(), userID, cart.Line{ProductID: productID, Quantity: qty}))
}

func testInput(userID string) checkout.PlaceOrderInput {
	return checkout.PlaceOrderInput{
		UserID: userID,
		Address: checkout.ShippingAddress{
			FullName:    "Jane Doe",
			Phone:       "555-0100",
			AddressLine: "1 Fern Way",
			City:        "Hanoi",
			Country:     "VN",
		},
		PaymentMethod: order.MethodCashOnDelivery,
		ClientIP:      "203.0.113.7",
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	store := seedStore(t)
	addLine(t, store, "user-1", "monstera", 2)
	publisher := &capturePublisher{}
	svc := checkout.NewService(store, &seqIDs{}, publisher, &stubGateway{url: "https://pay.example"})

	result, err := svc.PlaceOrder(context.Background(), testInput("user-1"))
	require.NoError(t, err)

	o := result.Order
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, int64(20000), o.TotalAmount)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, int64(10000), o.Lines[0].UnitPrice)
	assert.Empty(t, result.PaymentURL)

	// Stock decremented by exactly the ordered quantity.
	product, err := store.Products().Get(context.Background(), "monstera")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)

	// Cart destroyed by the successful checkout.
	lines, err := store.Carts().Lines(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	// Confirmation event published post-commit.
	events := publisher.published()
	require.Len(t, events, 1)
	placed, ok := events[0].(order.PlacedEvent)
	require.True(t, ok)
	assert.Equal(t, "order-1", placed.OrderID)
	assert.Equal(t, int64(20000), placed.TotalAmount)
}

func TestPlaceOrder_SnapshotsAddress(t *testing.T) {
	store := seedStore(t)
	addLine(t, store, "user-1", "monstera", 1)
	svc := checkout.NewService(store, &seqIDs{}, &capturePublisher{}, &stubGateway{})

	result, err := svc.PlaceOrder(context.Background(), testInput("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe, 555-0100, 1 Fern Way, Hanoi, VN", result.Order.Address)
}

func TestPlaceOrder_PriceImmuneToLaterCatalogChange(t *testing.T) {
	store := seedStore(t)
	addLine(t, store, "user-1", "monstera", 1)
	svc := checkout.NewService(store, &seqIDs{}, &capturePublisher{}, &stubGateway{})

	result, err := svc.PlaceOrder(context.Background(), testInput("user-1"))
	require.NoError(t, err)

	// Catalog price change after checkout must not affect the order.
	store.SeedProduct(&catalog.Product{ID: "monstera", Name: "Monstera deliciosa", Price: 99999, Stock: 4})

	reloaded, err := store.Orders().Get(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), reloaded.Lines[0].UnitPrice)
	assert.Equal(t, int64(10000), reloaded.TotalAmount)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	store := seedStore(t)
	svc := checkout.NewService(store, &seqIDs{}, &capturePublisher{}, &stubGateway{})

	_, err := svc.PlaceOrder(context.Background(), testInput("user-1"))
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestPlaceOrder_InsufficientStockIsAllOrNothing(t *testing.T) {
	store := seedStore(t)
	addLine(t, store, "user-1", "monstera", 2) // plenty
	addLine(t, store, "user-1", "pothos", 2)   // only 1 in stock
	publisher := &capturePublisher{}
	svc := checkout.NewService(store, &seqIDs{}, publisher, &stubGateway{})

	_, err := svc.PlaceOrder(context.Background(), testInput("user-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)

	var stockErr *checkout.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "pothos", stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	// No line's stock was altered, including the one that succeeded
	// before the abort.
	monstera, err := store.Products().Get(context.Background(), "monstera")
	require.NoError(t, err)
	assert.Equal(t, 5, monstera.Stock)
	pothos, err := store.Products().Get(context.Background(), "pothos")
	require.NoError(t, err)
	assert.Equal(t, 1, pothos.Stock)

	// No order persisted, cart untouched, nothing published.
	_, err = store.Orders().Get(context.Background(), "order-1")
	assert.ErrorIs(t, err, order.ErrNotFound)
	lines, err := store.Carts().Lines(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Empty(t, publisher.published())
}

func TestPlaceOrder_GatewayMethodReturnsRedirect(t *testing.T) {
	store := seedStore(t)
	addLine(t, store, "user-1", "monstera", 1)
	svc := checkout.NewService(store, &seqIDs{}, &capturePublisher{}, &stubGateway{url: "https://pay.example"})

	in := testInput("user-1")
	in.PaymentMethod = order.MethodVNPay
	result, err := svc.PlaceOrder(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example?ref=order-1", result.PaymentURL)
}

func TestPlaceOrder_UnknownPaymentMethod(t *testing.T) {
	store := seedStore(t)
	addLine(t, store, "user-1", "monstera", 1)
	svc := checkout.NewService(store, &seqIDs{}, &capturePublisher{}, &stubGateway{})

	in := testInput("user-1")
	in.PaymentMethod = order.PaymentMethod("bitcoin")
	_, err := svc.PlaceOrder(context.Background(), in)
	assert.ErrorIs(t, err, checkout.ErrUnknownPaymentMethod)
}

func TestPlaceOrder_PublishFailureDoesNotFailCheckout(t *testing.T) {
	store := seedStore(t)
	addLine(t, store, "user-1", "monstera", 1)
	publisher := &capturePublisher{err: errors.New("bus down")}
	svc := checkout.NewService(store, &seqIDs{}, publisher, &stubGateway{})

	result, err := svc.PlaceOrder(context.Background(), testInput("user-1"))
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, result.Order.Status)
}
