package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/domain/order"
	"github.com/greengrove/plantshop/internal/domain/outbox"
	"github.com/greengrove/plantshop/internal/pkg/logging"
	"github.com/greengrove/plantshop/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	instrumentationName = "checkout"
	spanPlaceOrder      = "UC.PlaceOrder"
	useCasePlaceOrder   = "checkout.place_order"
)

// ShippingAddress is the structured input captured at checkout. It is
// flattened into a single snapshot string on the order; structure not
// representable in the flat form is lost from that point on.
type ShippingAddress struct {
	FullName    string
	Phone       string
	AddressLine string
	City        string
	Country     string
}

func (a ShippingAddress) Flatten() string {
	parts := []string{a.FullName, a.Phone, a.AddressLine, a.City, a.Country}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

type PlaceOrderInput struct {
	UserID        string
	Address       ShippingAddress
	PaymentMethod order.PaymentMethod
	Notes         string
	ClientIP      string
}

type PlaceOrderResult struct {
	Order *order.Order
	// PaymentURL is set only for gateway-routed payment methods.
	PaymentURL string
}

// Service converts a cart into a persisted order: validation, price
// snapshotting, inventory reservation, line creation, and cart clearing
// all happen inside a single unit of work. The confirmation notification
// is dispatched post-commit and can never fail the checkout.
type Service struct {
	uow       storage.UnitOfWork
	ids       IDGenerator
	publisher outbox.Publisher
	gateway   PaymentGateway

	reqCounter   *prometheus.CounterVec   // checkout_requests_total{outcome}
	durHistogram *prometheus.HistogramVec // checkout_duration_seconds
}

func NewService(uow storage.UnitOfWork, ids IDGenerator, publisher outbox.Publisher, gateway PaymentGateway) *Service {
	return &Service{
		uow:       uow,
		ids:       ids,
		publisher: publisher,
		gateway:   gateway,
	}
}

// WithMetrics attaches pre-registered metric vectors. Callers that skip it
// (tests) get metric-free execution.
func (s *Service) WithMetrics(requests *prometheus.CounterVec, durations *prometheus.HistogramVec) *Service {
	s.reqCounter = requests
	s.durHistogram = durations
	return s
}

// PlaceOrder runs the checkout flow. On any failure before commit no
// persisted state changes at all: no order, no lines, no stock mutation,
// and the cart is left intact.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	logger := logging.FromContext(ctx).With(zap.String("use_case", useCasePlaceOrder))

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, spanPlaceOrder)
	span.SetAttributes(
		attribute.String("order.user_id", in.UserID),
		attribute.String("order.payment_method", string(in.PaymentMethod)),
	)
	start := time.Now()
	outcome := "success"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, outcome)
		}
		span.End()

		if s.reqCounter != nil {
			s.reqCounter.WithLabelValues(outcome).Inc()
		}
		if s.durHistogram != nil {
			s.durHistogram.WithLabelValues().Observe(lat)
		}

		level := zapcore.InfoLevel
		fields := []zap.Field{
			zap.String("outcome", outcome),
			zap.Float64("latency_seconds", lat),
		}
		if err != nil {
			level = zapcore.WarnLevel
			fields = append(fields, zap.Error(err))
		}
		logger.Log(level, "place_order_done", fields...)
	}()

	if in.UserID == "" {
		outcome = "invalid_input"
		return nil, errors.New("checkout: user id is required")
	}
	switch in.PaymentMethod {
	case order.MethodCashOnDelivery, order.MethodVNPay:
	default:
		outcome = "invalid_input"
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, in.PaymentMethod)
	}

	var placed *order.Order
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		lines, txErr := tx.Carts().Lines(ctx, in.UserID)
		if txErr != nil {
			return fmt.Errorf("checkout: read cart: %w", txErr)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		orderID := s.ids.NewID()
		orderLines := make([]order.Line, 0, len(lines))
		for _, cl := range lines {
			// The product is re-read under the transaction's lock; a cached
			// stock value would let two concurrent checkouts oversell.
			product, txErr := tx.Products().GetForUpdate(ctx, cl.ProductID)
			if txErr != nil {
				return fmt.Errorf("checkout: load product %s: %w", cl.ProductID, txErr)
			}
			if txErr := product.Reserve(cl.Quantity); txErr != nil {
				if errors.Is(txErr, catalog.ErrInsufficientStock) {
					return &InsufficientStockError{
						ProductID: cl.ProductID,
						Requested: cl.Quantity,
						Available: product.Stock,
					}
				}
				return fmt.Errorf("checkout: reserve product %s: %w", cl.ProductID, txErr)
			}
			if txErr := tx.Products().UpdateStock(ctx, product); txErr != nil {
				return fmt.Errorf("checkout: persist stock for %s: %w", cl.ProductID, txErr)
			}
			orderLines = append(orderLines, order.Line{
				ProductID: cl.ProductID,
				Quantity:  cl.Quantity,
				UnitPrice: product.Price,
			})
		}

		entity, txErr := order.New(orderID, in.UserID, in.Address.Flatten(), in.PaymentMethod, in.Notes, orderLines)
		if txErr != nil {
			return fmt.Errorf("checkout: construct order: %w", txErr)
		}
		if txErr := tx.Orders().Insert(ctx, entity); txErr != nil {
			return fmt.Errorf("checkout: insert order: %w", txErr)
		}
		if txErr := tx.Carts().Clear(ctx, in.UserID); txErr != nil {
			return fmt.Errorf("checkout: clear cart: %w", txErr)
		}

		placed = entity
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyCart):
			outcome = "empty_cart"
		case errors.Is(err, catalog.ErrInsufficientStock):
			outcome = "insufficient_stock"
		default:
			outcome = "error"
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", placed.ID),
		attribute.Int64("order.total_amount", placed.TotalAmount),
	)

	// Post-commit, fire-and-forget: a publish failure is logged and
	// counted but never observed by the checkout caller.
	if s.publisher != nil {
		if pubErr := s.publisher.Publish(ctx, order.NewPlacedEvent(placed)); pubErr != nil {
			logger.Warn("order_placed_publish_failed",
				zap.String("order_id", placed.ID),
				zap.Error(pubErr),
			)
		}
	}

	result := &PlaceOrderResult{Order: placed}
	if placed.PaymentMethod == order.MethodVNPay {
		url, gwErr := s.gateway.CreatePaymentURL(placed, in.ClientIP)
		if gwErr != nil {
			// The order is already committed; surface the failure so the
			// caller can retry the redirect, not the checkout.
			outcome = "gateway_error"
			return nil, fmt.Errorf("checkout: build payment url for order %s: %w", placed.ID, gwErr)
		}
		result.PaymentURL = url
	}

	return result, nil
}
