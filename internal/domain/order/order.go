package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrNoLines           = errors.New("order: at least one line is required")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("order: unit price must be zero or greater")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// PaymentMethod selects how an order is settled. Gateway methods hand the
// buyer off to the external provider and are finalized by its callback;
// CashOnDelivery orders stay in Processing until fulfilment.
type PaymentMethod string

const (
	MethodCashOnDelivery PaymentMethod = "cod"
	MethodVNPay          PaymentMethod = "vnpay"
)

// Line is a purchase-time snapshot of one cart line. UnitPrice is copied
// from the catalog at creation and never recomputed; it is the
// authoritative value for totals and payment-amount verification.
type Line struct {
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice int64
}

func (l Line) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// Order is created once per checkout attempt. Address and payment method
// are a point-in-time snapshot, never re-derived from live user data.
// Status is mutated only through Finalize.
type Order struct {
	ID            string
	UserID        string
	Address       string
	PaymentMethod PaymentMethod
	Notes         string
	TotalAmount   int64
	Status        Status
	Lines         []Line
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New assembles an order in the initial Processing status. The total is
// derived from the lines, so order.TotalAmount == Σ(qty × unitPrice) holds
// by construction.
func New(id, userID, address string, method PaymentMethod, notes string, lines []Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	var total int64
	for i := range lines {
		if lines[i].Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if lines[i].UnitPrice < 0 {
			return nil, ErrInvalidPrice
		}
		lines[i].OrderID = id
		total += lines[i].Subtotal()
	}

	now := time.Now().UTC()
	return &Order{
		ID:            id,
		UserID:        userID,
		Address:       address,
		PaymentMethod: method,
		Notes:         notes,
		TotalAmount:   total,
		Status:        StatusProcessing,
		Lines:         lines,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}
