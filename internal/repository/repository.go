package repository

import (
	"context"
	"time"

	"merocart/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepository defines data access for products, including the stock
// ledger owned by the checkout core.
type ProductRepository interface {
	// GetByIDs retrieves multiple products by their IDs. Used to snapshot
	// prices at order-creation time.
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	// ReserveStock decrements stock for every line within the provided
	// transaction. Each decrement is conditional on sufficient stock; if any
	// line cannot be satisfied the method returns model.ErrInsufficientStock
	// and the caller must roll back, leaving no line decremented.
	ReserveStock(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// RestoreStock increments stock for every line within the provided
	// transaction. Used for compensation; callers guard against calling it
	// more than once per reservation.
	RestoreStock(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error
}

// OrderRepository defines data access for orders and their line items.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts a new order within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts order items within the provided transaction.
	// The set is atomic: any failure aborts the batch and the caller's
	// rollback removes every line.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetByID retrieves an order by its ID along with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error)

	// GetItems retrieves the items of an order.
	GetItems(ctx context.Context, id uuid.UUID) ([]model.OrderItem, error)

	// UpdateStatus sets the order status. Unknown values are rejected with
	// model.ErrInvalidState before any write.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error

	// UpdatePaymentStatus sets the payment status on the order row. Unknown
	// values are rejected with model.ErrInvalidState before any write.
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error

	// MarkCommitted transitions an order whose payment is still pending to
	// confirmed/completed and assigns tracking details, all in one
	// conditional update. It reports whether this caller performed the
	// transition; false means another worker already resolved the order.
	MarkCommitted(ctx context.Context, tx pgx.Tx, id uuid.UUID, tracking string, estimatedDelivery time.Time) (bool, error)

	// MarkConfirmedPendingPayment transitions a pending order to confirmed
	// while leaving the payment pending. Used for cash on delivery, where
	// payment is collected physically after fulfilment.
	MarkConfirmedPendingPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, tracking string, estimatedDelivery time.Time) (bool, error)

	// MarkCancelled transitions an order to cancelled, flipping the payment
	// status to refunded if it had completed and to failed otherwise. It
	// reports whether this caller performed the transition; false means the
	// order was already cancelled or failed and no compensation is owed.
	MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// PaymentRepository defines data access for the per-order payment record.
type PaymentRepository interface {
	// Create inserts a payment row within the provided transaction.
	Create(ctx context.Context, tx pgx.Tx, payment *model.Payment) error

	// GetByOrderID retrieves the payment record for an order.
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)

	// SetReference records the provider reference issued when the
	// authorization was built. Only a pending payment accepts it;
	// verification later requires the confirmed reference to match.
	SetReference(ctx context.Context, orderID uuid.UUID, reference string) error

	// Complete marks the payment completed, recording the provider
	// transaction reference and raw payload, within the provided transaction.
	Complete(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, transactionID string, rawPayload []byte) error

	// Cancel resolves the payment of a cancelled order within the provided
	// transaction: a completed payment becomes refunded, anything else
	// failed, mirroring the order row's transition. The raw payload replaces
	// the stored one only when supplied.
	Cancel(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, rawPayload []byte) error
}

// CartRepository defines the cart collaborator surface the checkout core
// needs: clearing a user's cart after a committed order.
type CartRepository interface {
	// ClearCart removes every cart line belonging to the user.
	ClearCart(ctx context.Context, userID uuid.UUID) error
}
