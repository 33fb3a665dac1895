package service

import (
	"context"

	"merocart/internal/gateway"
	"merocart/internal/model"

	"github.com/google/uuid"
)

// CheckoutService drives a cart to a committed or compensated order.
type CheckoutService interface {
	// Checkout validates the cart, reserves stock, creates the order and
	// payment records, and obtains the gateway's authorization artifact.
	// Cash on delivery commits immediately; every other method leaves the
	// order pending until a confirmation arrives.
	Checkout(ctx context.Context, userID uuid.UUID, req *model.CheckoutRequest) (*model.CheckoutResponse, error)

	// GetOrder retrieves an order with its items.
	GetOrder(ctx context.Context, id uuid.UUID) (*model.OrderResponse, error)

	// CancelOrder cancels an order administratively, restoring stock and
	// flipping the payment status to refunded if it had completed.
	CancelOrder(ctx context.Context, id uuid.UUID, reason string) error
}

// Outcome is the result of reconciling a confirmation.
type Outcome string

const (
	// OutcomeCommitted: the order transitioned to confirmed/completed.
	OutcomeCommitted Outcome = "committed"

	// OutcomeCompensated: the order transitioned to cancelled and stock was
	// restored.
	OutcomeCompensated Outcome = "compensated"

	// OutcomeAlreadyHandled: the order had already been resolved; the
	// confirmation is a duplicate and no side effects ran.
	OutcomeAlreadyHandled Outcome = "already_handled"

	// OutcomePending: the provider has not resolved the payment yet; nothing
	// changed.
	OutcomePending Outcome = "pending"
)

// ReconcileResult reports what reconciling a confirmation did.
type ReconcileResult struct {
	OrderID       uuid.UUID           `json:"orderId"`
	Outcome       Outcome             `json:"outcome"`
	OrderStatus   model.OrderStatus   `json:"orderStatus"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
}

// ReconciliationService is the single idempotent entry point for payment
// confirmations, whichever channel delivered them.
type ReconciliationService interface {
	// Reconcile authenticates the confirmation and applies exactly one state
	// transition. Re-delivering the same confirmation is safe: duplicates
	// resolve to OutcomeAlreadyHandled without re-running side effects.
	Reconcile(ctx context.Context, conf gateway.Confirmation) (*ReconcileResult, error)
}
