package order

import "fmt"

// transitions is the owner-driven forward path. pending and cancelled are
// reserved: nothing produces them and nothing leaves them.
var transitions = map[Status]Status{
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

// IllegalTransitionError indicates that an order in status From cannot be
// advanced.
type IllegalTransitionError struct {
	From Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order in status %q cannot be advanced", e.From)
}

// Next returns the status following s.
func Next(s Status) (Status, error) {
	next, ok := transitions[s]
	if !ok {
		return "", &IllegalTransitionError{From: s}
	}
	return next, nil
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}
