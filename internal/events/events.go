// Package events defines the notifications this core emits. Delivery (email,
// SMS, WebSocket broadcast) is the receiver's responsibility; the core only
// publishes.
package events

import (
	"context"
	"time"
)

// OrderCommitted is emitted exactly once per successfully committed order.
// It carries everything the notification layer needs to reach the customer,
// including the tracking token for the guest status link.
type OrderCommitted struct {
	OrderID       string
	OrderNumber   string
	TicketNumber  string
	TrackingToken string
	OwnerID       string
	GuestContact  string
	Total         string
	CommittedAt   time.Time
}

// Publisher delivers events to interested receivers. Publish must not block
// the checkout path on slow consumers and must not fail the commit: the
// order is already durable by the time an event is published.
type Publisher interface {
	Publish(ctx context.Context, ev OrderCommitted)
}
