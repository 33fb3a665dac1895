package notify

import (
	"context"
	"time"

	"merocart/internal/model"
)

// EventKind names an order lifecycle event.
type EventKind string

const (
	// EventOrderConfirmed fires when an order commits. Consumers own cart
	// analytics and customer email.
	EventOrderConfirmed EventKind = "order.confirmed"

	// EventOrderCancelled fires when an order is compensated or cancelled.
	EventOrderCancelled EventKind = "order.cancelled"
)

// OrderEvent is the published payload.
type OrderEvent struct {
	Kind          string    `json:"kind"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	TotalAmount   float64   `json:"total_amount"`
	OrderStatus   string    `json:"order_status"`
	PaymentStatus string    `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier dispatches order lifecycle events. Delivery is best-effort from
// the caller's perspective: a failed publish is the caller's to log, never a
// reason to roll back a committed order.
type Notifier interface {
	// Notify publishes an event for the order.
	Notify(ctx context.Context, kind EventKind, order *model.Order) error

	// Close releases the underlying connection.
	Close() error
}

// nopNotifier is used when event publishing is disabled.
type nopNotifier struct{}

// NewNop returns a Notifier that drops every event.
func NewNop() Notifier {
	return nopNotifier{}
}

func (nopNotifier) Notify(ctx context.Context, kind EventKind, order *model.Order) error {
	return nil
}

func (nopNotifier) Close() error {
	return nil
}
