// Package notification delivers the order-confirmation trigger. Content
// and formatting belong to the downstream channel; only the handoff lives
// here, decoupled from the checkout transaction via the outbox bus.
package notification

import (
	"context"

	domorder "github.com/greengrove/plantshop/internal/domain/order"
	domoutbox "github.com/greengrove/plantshop/internal/domain/outbox"
	"github.com/greengrove/plantshop/internal/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Confirmation is the payload handed to the delivery channel.
type Confirmation struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	TotalAmount int64  `json:"total_amount"`
	LineCount   int    `json:"line_count"`
}

type Sender interface {
	Send(ctx context.Context, c Confirmation) error
}

type Worker struct {
	subscriber domoutbox.Subscriber
	sender     Sender

	failures prometheus.Counter // notification_publish_failed_total
}

func NewWorker(subscriber domoutbox.Subscriber, sender Sender) *Worker {
	return &Worker{subscriber: subscriber, sender: sender}
}

func (w *Worker) WithMetrics(failures prometheus.Counter) *Worker {
	w.failures = failures
	return w
}

func (w *Worker) Start() {
	w.subscriber.Subscribe(domorder.PlacedEvent{}.EventName(), w.handleOrderPlaced)
}

func (w *Worker) handleOrderPlaced(ctx context.Context, e domoutbox.Event) error {
	logger := logging.FromContext(ctx).With(zap.String("component", "notification_worker"))

	evt, ok := e.(domorder.PlacedEvent)
	if !ok {
		return nil
	}

	err := w.sender.Send(ctx, Confirmation{
		OrderID:     evt.OrderID,
		UserID:      evt.UserID,
		TotalAmount: evt.TotalAmount,
		LineCount:   evt.LineCount,
	})
	if err != nil {
		if w.failures != nil {
			w.failures.Inc()
		}
		logger.Warn("notification_send_failed",
			zap.String("order_id", evt.OrderID),
			zap.Error(err),
		)
		return err
	}

	logger.Info("notification_sent", zap.String("order_id", evt.OrderID))
	return nil
}
