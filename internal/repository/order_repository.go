package repository

import (
	"context"
	"fmt"
	"time"

	"merocart/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateOrder inserts a new order within the provided transaction.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	query := `
		INSERT INTO orders (
			id, user_id, subtotal, shipping_fee, discount, total_amount,
			order_status, payment_status,
			ship_full_name, ship_phone, ship_city, ship_street,
			promo_code, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := tx.Exec(ctx, query,
		order.ID, order.UserID,
		order.Subtotal, order.ShippingFee, order.Discount, order.TotalAmount,
		order.Status, order.PaymentStatus,
		order.Address.FullName, order.Address.Phone, order.Address.City, order.Address.Street,
		order.PromoCode, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Msg("order created")

	return nil
}

// CreateOrderItems inserts order items within the provided transaction. The
// batch aborts on the first failure; the caller's rollback removes any lines
// already queued.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Str("product_id", items[i].ProductID).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created")

	return nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	orderQuery := `
		SELECT id, user_id, subtotal, shipping_fee, discount, total_amount,
		       order_status, payment_status,
		       ship_full_name, ship_phone, ship_city, ship_street,
		       promo_code, tracking_number, estimated_delivery,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order model.Order
	err := r.pool.QueryRow(ctx, orderQuery, id).Scan(
		&order.ID, &order.UserID,
		&order.Subtotal, &order.ShippingFee, &order.Discount, &order.TotalAmount,
		&order.Status, &order.PaymentStatus,
		&order.Address.FullName, &order.Address.Phone, &order.Address.City, &order.Address.Street,
		&order.PromoCode, &order.TrackingNumber, &order.EstimatedDelivery,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
			return nil, nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order")
		return nil, nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.GetItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return &order, items, nil
}

// GetItems retrieves the items of an order.
func (r *orderRepository) GetItems(ctx context.Context, id uuid.UUID) ([]model.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order items")
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

// UpdateStatus sets the order status after validating the value.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	if !status.Valid() {
		r.logger.Error().
			Str("order_id", id.String()).
			Str("status", string(status)).
			Msg("rejecting unknown order status")
		return model.ErrInvalidState
	}

	query := `UPDATE orders SET order_status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to update order status")
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}

// UpdatePaymentStatus sets the payment status after validating the value.
func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	if !status.Valid() {
		r.logger.Error().
			Str("order_id", id.String()).
			Str("status", string(status)).
			Msg("rejecting unknown payment status")
		return model.ErrInvalidState
	}

	query := `UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to update payment status")
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}

// MarkCommitted performs the conditional success transition. Only an order
// whose payment is still pending moves to confirmed/completed, so a
// duplicate confirmation racing on the same order finds zero rows and
// reports "already handled" instead of double-effecting side effects.
func (r *orderRepository) MarkCommitted(ctx context.Context, tx pgx.Tx, id uuid.UUID, tracking string, estimatedDelivery time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET order_status = $2,
		    payment_status = $3,
		    tracking_number = $4,
		    estimated_delivery = $5,
		    updated_at = now()
		WHERE id = $1 AND payment_status = $6
	`

	tag, err := tx.Exec(ctx, query, id,
		model.OrderConfirmed, model.PaymentCompleted,
		tracking, estimatedDelivery, model.PaymentPending)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to commit order")
		return false, fmt.Errorf("failed to commit order: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkConfirmedPendingPayment confirms a pending order without completing
// payment. Cash on delivery collects payment after fulfilment.
func (r *orderRepository) MarkConfirmedPendingPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, tracking string, estimatedDelivery time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET order_status = $2,
		    tracking_number = $3,
		    estimated_delivery = $4,
		    updated_at = now()
		WHERE id = $1 AND order_status = $5 AND payment_status = $6
	`

	tag, err := tx.Exec(ctx, query, id,
		model.OrderConfirmed, tracking, estimatedDelivery,
		model.OrderPending, model.PaymentPending)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to confirm order")
		return false, fmt.Errorf("failed to confirm order: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkCancelled performs the conditional cancellation transition. A payment
// that had completed becomes refunded; anything still pending becomes
// failed. Orders already failed or refunded are left untouched so
// compensation runs at most once.
func (r *orderRepository) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	query := `
		UPDATE orders
		SET order_status = $2,
		    payment_status = CASE WHEN payment_status = $3 THEN $4 ELSE $5 END,
		    updated_at = now()
		WHERE id = $1 AND payment_status IN ($3, $6)
	`

	tag, err := tx.Exec(ctx, query, id,
		model.OrderCancelled,
		model.PaymentCompleted, model.PaymentRefunded, model.PaymentFailed,
		model.PaymentPending)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to cancel order")
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
