package repository

import (
	"context"
	"fmt"

	"merocart/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// paymentRepository implements the PaymentRepository interface using PostgreSQL.
type paymentRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(pool *pgxpool.Pool, logger zerolog.Logger) PaymentRepository {
	return &paymentRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "payment").Logger(),
	}
}

// Create inserts a payment row within the provided transaction.
func (r *paymentRepository) Create(ctx context.Context, tx pgx.Tx, payment *model.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, method, status, transaction_id, raw_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		payment.ID, payment.OrderID, payment.Method, payment.Status,
		payment.TransactionID, payment.RawPayload,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", payment.OrderID.String()).
			Str("method", string(payment.Method)).
			Msg("failed to create payment")
		return fmt.Errorf("failed to create payment: %w", err)
	}

	r.logger.Debug().
		Str("order_id", payment.OrderID.String()).
		Str("method", string(payment.Method)).
		Msg("payment created")

	return nil
}

// GetByOrderID retrieves the payment record for an order.
func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	query := `
		SELECT id, order_id, method, status, transaction_id, raw_payload, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var p model.Payment
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Status,
		&p.TransactionID, &p.RawPayload,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			r.logger.Debug().Str("order_id", orderID.String()).Msg("payment not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to query payment")
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}

	return &p, nil
}

// Complete marks the payment completed with the provider transaction
// reference and raw payload.
func (r *paymentRepository) Complete(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, transactionID string, rawPayload []byte) error {
	query := `
		UPDATE payments
		SET status = $2,
		    transaction_id = $3,
		    raw_payload = $4,
		    updated_at = now()
		WHERE order_id = $1
	`

	_, err := tx.Exec(ctx, query, orderID, model.PaymentCompleted, transactionID, rawPayload)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to complete payment")
		return fmt.Errorf("failed to complete payment: %w", err)
	}

	return nil
}

// SetReference records the provider reference issued at authorization time
// on the pending payment row.
func (r *paymentRepository) SetReference(ctx context.Context, orderID uuid.UUID, reference string) error {
	query := `
		UPDATE payments
		SET transaction_id = $2,
		    updated_at = now()
		WHERE order_id = $1 AND status = $3
	`

	_, err := r.pool.Exec(ctx, query, orderID, reference, model.PaymentPending)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to record authorization reference")
		return fmt.Errorf("failed to record authorization reference: %w", err)
	}

	return nil
}

// Cancel resolves the payment of a cancelled order. The status mirrors the
// order row: a payment that had completed becomes refunded, anything else
// failed. The raw payload is kept for audit.
func (r *paymentRepository) Cancel(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, rawPayload []byte) error {
	query := `
		UPDATE payments
		SET status = CASE WHEN status = $2 THEN $3 ELSE $4 END,
		    raw_payload = COALESCE($5, raw_payload),
		    updated_at = now()
		WHERE order_id = $1
	`

	_, err := tx.Exec(ctx, query, orderID,
		model.PaymentCompleted, model.PaymentRefunded, model.PaymentFailed, rawPayload)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to cancel payment")
		return fmt.Errorf("failed to cancel payment: %w", err)
	}

	return nil
}
