package events

import (
	"context"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log. It stands in for the
// notification dispatch service in deployments that have none, and doubles
// as an audit trail: every emitted event appears in the log exactly as
// encoded, with the tracking token redacted.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish encodes the event and logs it at info level.
func (p *LogPublisher) Publish(ctx context.Context, ev OrderCommitted) {
	lg := p.lg
	if lg == nil {
		lg = zctx.From(ctx)
	}
	lg.Info("order_committed",
		zap.String("order_id", ev.OrderID),
		zap.String("payload", string(EncodePayload(ev, true))),
	)
}

// EncodePayload renders the wire payload for an OrderCommitted event. When
// redactToken is set the tracking token is omitted; logs and broadcast
// channels must never carry the guest secret.
func EncodePayload(ev OrderCommitted, redactToken bool) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("event", func(e *jx.Encoder) { e.Str("order_committed") })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(ev.OrderID) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(ev.OrderNumber) })
		e.Field("ticket_number", func(e *jx.Encoder) { e.Str(ev.TicketNumber) })
		if !redactToken {
			e.Field("tracking_token", func(e *jx.Encoder) { e.Str(ev.TrackingToken) })
		}
		e.Field("owner_id", func(e *jx.Encoder) { e.Str(ev.OwnerID) })
		if ev.GuestContact != "" {
			e.Field("contact", func(e *jx.Encoder) { e.Str(ev.GuestContact) })
		}
		e.Field("total", func(e *jx.Encoder) { e.Str(ev.Total) })
		e.Field("committed_at", func(e *jx.Encoder) { e.Str(ev.CommittedAt.UTC().Format("2006-01-02T15:04:05Z07:00")) })
	})
	return e.Bytes()
}
