package order

// Status is the closed set of order lifecycle states. An order starts in
// Processing and moves forward exactly once, into one of the two terminal
// states; terminal states accept no further transitions.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the closed status values. Useful when
// a status crosses a persistence or transport boundary as text.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Outcome is a finalize target: the terminal status a payment result maps
// to.
type Outcome Status

const (
	OutcomeCompleted Outcome = Outcome(StatusCompleted)
	OutcomeCancelled Outcome = Outcome(StatusCancelled)
)

func (o Outcome) valid() bool {
	return o == OutcomeCompleted || o == OutcomeCancelled
}

// Finalize applies a terminal outcome. Re-finalizing an already-terminal
// order is a successful no-op (changed == false); this is the defense
// against duplicate and retried gateway callbacks, which are delivered at
// least once. Only a valid outcome on a Processing order mutates state.
func (o *Order) Finalize(outcome Outcome) (changed bool, err error) {
	if !outcome.valid() {
		return false, ErrInvalidTransition
	}
	if o.Status.Terminal() {
		return false, nil
	}
	if o.Status != StatusProcessing {
		return false, ErrInvalidTransition
	}
	o.Status = Status(outcome)
	o.touch()
	return true, nil
}
