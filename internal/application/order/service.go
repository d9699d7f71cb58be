package order

import (
	"context"
	"fmt"

	domain "github.com/greengrove/plantshop/internal/domain/order"
	"github.com/greengrove/plantshop/internal/domain/outbox"
	"github.com/greengrove/plantshop/internal/pkg/logging"
	"github.com/greengrove/plantshop/internal/storage"

	"go.uber.org/zap"
)

// Service exposes the order state machine: the idempotent finalize used by
// the payment callback and the user-scoped status query.
type Service struct {
	store     storage.Store
	publisher outbox.Publisher

	// restockOnCancel controls whether a cancellation returns reserved
	// stock to the catalog. The shipped default is off: reserved stock on
	// a failed payment is treated as consumed pending manual
	// reconciliation.
	restockOnCancel bool
}

type Option func(*Service)

// WithRestockOnCancel makes cancellation restore each line's reserved
// quantity inside the finalize transaction.
func WithRestockOnCancel() Option {
	return func(s *Service) { s.restockOnCancel = true }
}

func NewService(store storage.Store, publisher outbox.Publisher, opts ...Option) *Service {
	s := &Service{store: store, publisher: publisher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Finalize moves a Processing order into the given terminal outcome.
// Calling it on an already-finalized order is a successful no-op
// (changed == false) regardless of outcome; the at-least-once gateway
// callback relies on this instead of request deduplication.
func (s *Service) Finalize(ctx context.Context, orderID string, outcome domain.Outcome) (finalized *domain.Order, changed bool, err error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "order_service"))

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, txErr := tx.Orders().Get(ctx, orderID)
		if txErr != nil {
			return txErr
		}

		changed, txErr = o.Finalize(outcome)
		if txErr != nil {
			return fmt.Errorf("order: finalize %s: %w", orderID, txErr)
		}
		if !changed {
			finalized = o
			return nil
		}

		if txErr := tx.Orders().UpdateStatus(ctx, o); txErr != nil {
			return fmt.Errorf("order: persist status for %s: %w", orderID, txErr)
		}

		if o.Status == domain.StatusCancelled && s.restockOnCancel {
			for _, line := range o.Lines {
				product, txErr := tx.Products().GetForUpdate(ctx, line.ProductID)
				if txErr != nil {
					return fmt.Errorf("order: load product %s for restock: %w", line.ProductID, txErr)
				}
				if txErr := product.Restore(line.Quantity); txErr != nil {
					return fmt.Errorf("order: restock product %s: %w", line.ProductID, txErr)
				}
				if txErr := tx.Products().UpdateStock(ctx, product); txErr != nil {
					return fmt.Errorf("order: persist restock for %s: %w", line.ProductID, txErr)
				}
			}
		}

		finalized = o
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		logger.Info("order_finalized",
			zap.String("order_id", finalized.ID),
			zap.String("status", string(finalized.Status)),
		)
		if s.publisher != nil {
			if pubErr := s.publisher.Publish(ctx, domain.NewFinalizedEvent(finalized)); pubErr != nil {
				logger.Warn("order_finalized_publish_failed",
					zap.String("order_id", finalized.ID),
					zap.Error(pubErr),
				)
			}
		}
	}

	return finalized, changed, nil
}

// Get loads an order without ownership scoping; callers on trusted paths
// (the payment callback) use it for amount and status verification.
func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, domain.ErrNotFound
	}
	return s.store.Orders().Get(ctx, orderID)
}

// GetForUser loads an order scoped to its owner. An order that exists but
// belongs to someone else is reported as not found.
func (s *Service) GetForUser(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return o, nil
}
