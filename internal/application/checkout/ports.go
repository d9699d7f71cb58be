package checkout

import "github.com/greengrove/plantshop/internal/domain/order"

type IDGenerator interface {
	NewID() string
}

// PaymentGateway builds the redirect URL that hands a freshly created
// order to the external payment provider.
type PaymentGateway interface {
	CreatePaymentURL(o *order.Order, clientIP string) (string, error)
}
