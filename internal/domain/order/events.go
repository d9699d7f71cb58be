package order

import "time"

// PlacedEvent is emitted after a checkout transaction commits. It drives
// the confirmation notification; handler failures never affect the order.
type PlacedEvent struct {
	OrderID     string
	UserID      string
	TotalAmount int64
	LineCount   int
	OccurredAt  time.Time
}

func (PlacedEvent) EventName() string { return "order.placed" }

func NewPlacedEvent(o *Order) PlacedEvent {
	return PlacedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		LineCount:   len(o.Lines),
		OccurredAt:  time.Now().UTC(),
	}
}

// FinalizedEvent is emitted when a gateway callback settles an order.
type FinalizedEvent struct {
	OrderID    string
	UserID     string
	Status     Status
	OccurredAt time.Time
}

func (FinalizedEvent) EventName() string { return "order.finalized" }

func NewFinalizedEvent(o *Order) FinalizedEvent {
	return FinalizedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		OccurredAt: time.Now().UTC(),
	}
}
