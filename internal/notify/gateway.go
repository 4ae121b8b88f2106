// Package notify isolates outbound notification delivery behind a
// fire-and-forget contract. Delivery happens out of band; a failed send is a
// logged observation, never an error the triggering mutation depends on.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kind names the notification template the delivery side should render.
type Kind string

const (
	KindAuditStatusChanged Kind = "audit_status_changed"
	KindAuditClosed        Kind = "audit_closed"
	KindMajorsCleared      Kind = "major_non_conformities_cleared"
	KindFindingAssigned    Kind = "finding_assigned"
	KindActionAssigned     Kind = "action_assigned"
)

// Message is the structured payload handed to the delivery pipeline.
type Message struct {
	Kind       Kind           `json:"kind"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload"`
	SentAt     time.Time      `json:"sent_at"`
}

// Gateway accepts messages for out-of-band delivery.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher wraps a Gateway with the no-throw contract services rely on:
// errors are logged and swallowed, metrics observe the failure, and the
// caller's mutation is never affected.
type Dispatcher struct {
	gateway   Gateway
	logger    *slog.Logger
	onFailure func()
}

// NewDispatcher builds a dispatcher. A nil gateway disables delivery entirely.
// onFailure may be nil; when set it is invoked once per failed send.
func NewDispatcher(gateway Gateway, logger *slog.Logger, onFailure func()) *Dispatcher {
	return &Dispatcher{gateway: gateway, logger: logger, onFailure: onFailure}
}

// Dispatch delivers best-effort. It never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	if d == nil || d.gateway == nil || len(msg.Recipients) == 0 {
		return
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	if err := d.gateway.Send(ctx, msg); err != nil {
		if d.onFailure != nil {
			d.onFailure()
		}
		if d.logger != nil {
			d.logger.WarnContext(ctx, "notification delivery failed",
				"kind", msg.Kind,
				"recipients", len(msg.Recipients),
				"error", err,
			)
		}
	}
}
