package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"merocart/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// compensate undoes a reservation: one transaction cancels the order,
// resolves the payment record (failed, or refunded if it had completed) and
// restores the reserved stock. The cancellation is a conditional transition, so a second
// caller racing on the same order finds it already resolved and restores
// nothing; the reservation and its compensation net to zero exactly once.
//
// Returns whether this caller performed the compensation.
func compensate(
	ctx context.Context,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	paymentRepo repository.PaymentRepository,
	orderID uuid.UUID,
	rawPayload []byte,
	logger zerolog.Logger,
) (won bool, err error) {
	tx, err := orderRepo.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to compensate order: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.Error().Err(rbErr).Msg("failed to rollback compensation")
			}
		}
	}()

	won, err = orderRepo.MarkCancelled(ctx, tx, orderID)
	if err != nil {
		return false, err
	}

	if !won {
		// Another worker already resolved this order; nothing to undo.
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error().Err(rbErr).Msg("failed to rollback compensation")
		}
		return false, nil
	}

	items, err := orderRepo.GetItems(ctx, orderID)
	if err != nil {
		return false, err
	}

	if err = productRepo.RestoreStock(ctx, tx, items); err != nil {
		return false, err
	}

	if err = paymentRepo.Cancel(ctx, tx, orderID, rawPayload); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit compensation: %w", err)
	}

	logger.Info().
		Str("order_id", orderID.String()).
		Int("line_count", len(items)).
		Msg("order compensated, stock restored")

	return true, nil
}

// newTrackingNumber generates a shipment tracking reference.
func newTrackingNumber() string {
	ref := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "TRK-" + ref[:12]
}

// estimatedDelivery computes the delivery estimate assigned on commit.
func estimatedDelivery(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, days)
}
