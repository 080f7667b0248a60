// Package fulfillment defines the fixed lifecycle an order moves through on
// the staff dashboard.
package fulfillment

import (
	"fmt"
	"time"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusReceived  Status = "received"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Cancellation is only possible before the food is ready; later than that it
// becomes a refund workflow handled elsewhere.
var transitions = map[Status][]Status{
	StatusReceived:  {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted},
	StatusCompleted: {},
	StatusCancelled: {},
}

// InvalidTransitionError is returned when a requested status change is not
// legal from the order's current state. It is never coerced to a legal one.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// Code returns the machine-readable error code for API responses.
func (e *InvalidTransitionError) Code() string { return "INVALID_STATE_TRANSITION" }

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates the requested status change, returning an
// *InvalidTransitionError when it is not allowed.
func Transition(from, to Status) error {
	if !to.Valid() {
		return &InvalidTransitionError{From: from, To: to}
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Change is one accepted transition in an order's append-only history.
// Entries are strictly ordered by the commit time of each transition.
type Change struct {
	OrderID        string
	PreviousStatus Status
	NewStatus      Status
	Actor          string
	At             time.Time
}
