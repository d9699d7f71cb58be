package vnpay

import (
	"context"
	"errors"
	"net/url"

	"github.com/greengrove/plantshop/internal/domain/order"
	"github.com/greengrove/plantshop/internal/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// IPN result codes. The transport response is always HTTP 200; anything
// else makes the provider treat the notification as undelivered and retry
// indefinitely. 00 and 02 are both acknowledgments the provider stops
// retrying on.
const (
	CodeConfirmed        = "00"
	CodeOrderNotFound    = "01"
	CodeAcknowledged     = "02"
	CodeInvalidAmount    = "04"
	CodeInvalidSignature = "97"
	CodeUnknownError     = "99"
)

// Response is the body-encoded outcome of one IPN delivery.
type Response struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// OrderFinalizer is the slice of the order service the IPN processor
// needs: a verification read and the idempotent finalize.
type OrderFinalizer interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
	Finalize(ctx context.Context, orderID string, outcome order.Outcome) (*order.Order, bool, error)
}

// IPN processes gateway callbacks. Every verification gate must pass
// before the single mutating step (finalize) is reached; each rejection is
// side-effect-free.
type IPN struct {
	gateway *Gateway
	orders  OrderFinalizer

	results *prometheus.CounterVec // ipn_results_total{code}
}

func NewIPN(gateway *Gateway, orders OrderFinalizer) *IPN {
	return &IPN{gateway: gateway, orders: orders}
}

// WithMetrics attaches the pre-registered result counter.
func (i *IPN) WithMetrics(results *prometheus.CounterVec) *IPN {
	i.results = results
	return i
}

// Handle runs the callback state machine over one delivery and always
// yields a structured response, never an error.
func (i *IPN) Handle(ctx context.Context, raw url.Values) Response {
	logger := logging.FromContext(ctx).With(zap.String("component", "vnpay_ipn"))

	resp := i.handle(ctx, logger, raw)
	if i.results != nil {
		i.results.WithLabelValues(resp.RspCode).Inc()
	}
	return resp
}

func (i *IPN) handle(ctx context.Context, logger *zap.Logger, raw url.Values) Response {
	cb, err := i.gateway.VerifyCallback(raw)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			logger.Warn("ipn_rejected_invalid_signature",
				zap.String("txn_ref", raw.Get(paramTxnRef)),
			)
			return Response{RspCode: CodeInvalidSignature, Message: "Invalid signature"}
		}
		logger.Warn("ipn_rejected_malformed", zap.Error(err))
		return Response{RspCode: CodeUnknownError, Message: "Unknown error"}
	}

	if cb.TxnRef == "" {
		return Response{RspCode: CodeOrderNotFound, Message: "Order not found"}
	}

	o, err := i.orders.Get(ctx, cb.TxnRef)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			logger.Warn("ipn_rejected_unknown_order", zap.String("txn_ref", cb.TxnRef))
			return Response{RspCode: CodeOrderNotFound, Message: "Order not found"}
		}
		logger.Error("ipn_order_lookup_failed", zap.String("txn_ref", cb.TxnRef), zap.Error(err))
		return Response{RspCode: CodeUnknownError, Message: "Unknown error"}
	}

	// Anti-fraud guard: the callback amount must match the purchase-time
	// total exactly. A mismatch is logged for investigation and rejected
	// without touching the order.
	if cb.Amount != o.TotalAmount {
		logger.Warn("ipn_rejected_amount_mismatch",
			zap.String("order_id", o.ID),
			zap.Int64("callback_amount", cb.Amount),
			zap.Int64("order_amount", o.TotalAmount),
		)
		return Response{RspCode: CodeInvalidAmount, Message: "Invalid amount"}
	}

	// Redelivery of an already-settled result repeats no side effect.
	if o.Status.Terminal() {
		return Response{RspCode: CodeAcknowledged, Message: "Order already confirmed"}
	}

	outcome := order.OutcomeCancelled
	if cb.Success {
		outcome = order.OutcomeCompleted
	}

	if _, _, err := i.orders.Finalize(ctx, o.ID, outcome); err != nil {
		logger.Error("ipn_finalize_failed",
			zap.String("order_id", o.ID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		return Response{RspCode: CodeUnknownError, Message: "Unknown error"}
	}

	if cb.Success {
		return Response{RspCode: CodeConfirmed, Message: "Confirm success"}
	}
	return Response{RspCode: CodeAcknowledged, Message: "Payment failure recorded"}
}
