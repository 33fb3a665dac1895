package service

import (
	"context"
	"fmt"

	"merocart/internal/config"
	"merocart/internal/gateway"
	"merocart/internal/model"
	"merocart/internal/notify"
	"merocart/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// reconciliationService implements ReconciliationService.
type reconciliationService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	paymentRepo repository.PaymentRepository
	cartRepo    repository.CartRepository
	gateways    *gateway.Registry
	notifier    notify.Notifier
	cfg         config.CheckoutConfig
	logger      zerolog.Logger
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	paymentRepo repository.PaymentRepository,
	cartRepo repository.CartRepository,
	gateways *gateway.Registry,
	notifier notify.Notifier,
	cfg config.CheckoutConfig,
	logger zerolog.Logger,
) ReconciliationService {
	return &reconciliationService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		paymentRepo: paymentRepo,
		cartRepo:    cartRepo,
		gateways:    gateways,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With().Str("service", "reconciliation").Logger(),
	}
}

// Reconcile applies a confirmation to its order exactly once.
//
// The order is re-read first; a confirmation for an already-resolved order is
// reported as a duplicate without touching the provider. Authentication
// always precedes any state change, so a forged payload can cancel nothing
// it should not and commit nothing at all. Commit and compensation both ride
// on conditional transitions: when two deliveries of the same confirmation
// race, exactly one wins the row and runs the side effects.
func (s *reconciliationService) Reconcile(ctx context.Context, conf gateway.Confirmation) (*ReconcileResult, error) {
	order, _, err := s.orderRepo.GetByID(ctx, conf.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile confirmation: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	if order.PaymentStatus != model.PaymentPending {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("payment_status", string(order.PaymentStatus)).
			Msg("duplicate confirmation, order already resolved")
		return s.result(order, OutcomeAlreadyHandled), nil
	}

	payment, err := s.paymentRepo.GetByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile confirmation: %w", err)
	}
	if payment == nil {
		return nil, model.ErrOrderNotFound
	}

	adapter, err := s.gateways.Lookup(payment.Method)
	if err != nil {
		return nil, err
	}

	// The adapter binds the confirmation to this order using facts from our
	// own records, never from the inbound payload.
	conf.OrderAmount = order.TotalAmount
	if payment.TransactionID != nil {
		conf.IssuedReference = *payment.TransactionID
	}

	verdict, err := adapter.VerifyConfirmation(ctx, conf)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Str("method", string(payment.Method)).
			Msg("confirmation verification failed")
		return nil, err
	}

	if !verdict.Authentic {
		return s.rejectTampered(ctx, order, verdict)
	}

	if verdict.Pending {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("method", string(payment.Method)).
			Msg("payment not yet resolved by provider")
		return s.result(order, OutcomePending), nil
	}

	if verdict.Succeeded {
		return s.commit(ctx, order, verdict)
	}

	return s.declineAndCompensate(ctx, order, verdict)
}

// commit finalises a verified successful payment: conditional transition to
// confirmed/completed plus the payment record update in one transaction,
// then cart clearing and notification once, only for the winning caller.
func (s *reconciliationService) commit(ctx context.Context, order *model.Order, verdict *gateway.Verification) (*ReconcileResult, error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback commit")
			}
		}
	}()

	tracking := newTrackingNumber()
	eta := estimatedDelivery(s.cfg.DeliveryDays)

	won, err := s.orderRepo.MarkCommitted(ctx, tx, order.ID, tracking, eta)
	if err != nil {
		return nil, err
	}

	if !won {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("failed to rollback commit")
		}
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Msg("lost commit race, order already resolved")
		return s.reloadResult(ctx, order.ID, OutcomeAlreadyHandled)
	}

	if err = s.paymentRepo.Complete(ctx, tx, order.ID, verdict.TransactionID, verdict.RawPayload); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	order.Status = model.OrderConfirmed
	order.PaymentStatus = model.PaymentCompleted
	order.TrackingNumber = &tracking
	order.EstimatedDelivery = &eta

	if err := s.cartRepo.ClearCart(ctx, order.UserID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", order.UserID.String()).Msg("failed to clear cart")
	}

	if err := s.notifier.Notify(ctx, notify.EventOrderConfirmed, order); err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish confirmation event")
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("transaction_id", verdict.TransactionID).
		Str("tracking_number", tracking).
		Msg("payment confirmed, order committed")

	return s.result(order, OutcomeCommitted), nil
}

// declineAndCompensate unwinds a verified failed payment.
func (s *reconciliationService) declineAndCompensate(ctx context.Context, order *model.Order, verdict *gateway.Verification) (*ReconcileResult, error) {
	won, err := compensate(ctx, s.orderRepo, s.productRepo, s.paymentRepo, order.ID, verdict.RawPayload, s.logger)
	if err != nil {
		return nil, err
	}

	if !won {
		return s.reloadResult(ctx, order.ID, OutcomeAlreadyHandled)
	}

	order.Status = model.OrderCancelled
	order.PaymentStatus = model.PaymentFailed

	if err := s.notifier.Notify(ctx, notify.EventOrderCancelled, order); err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish cancellation event")
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Msg("payment declined, order compensated")

	return s.result(order, OutcomeCompensated), nil
}

// rejectTampered handles a confirmation that failed authentication. The
// order is compensated so its reservation cannot dangle forever, the event
// is logged for the security trail, and the caller gets a deliberately
// generic failure.
func (s *reconciliationService) rejectTampered(ctx context.Context, order *model.Order, verdict *gateway.Verification) (*ReconcileResult, error) {
	s.logger.Error().
		Bool("security_event", true).
		Str("order_id", order.ID.String()).
		Msg("confirmation failed authentication")

	won, err := compensate(ctx, s.orderRepo, s.productRepo, s.paymentRepo, order.ID, verdict.RawPayload, s.logger)
	if err != nil {
		return nil, err
	}

	if won {
		order.Status = model.OrderCancelled
		order.PaymentStatus = model.PaymentFailed
		if err := s.notifier.Notify(ctx, notify.EventOrderCancelled, order); err != nil {
			s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish cancellation event")
		}
	}

	return nil, model.ErrTamperedConfirmation
}

func (s *reconciliationService) result(order *model.Order, outcome Outcome) *ReconcileResult {
	return &ReconcileResult{
		OrderID:       order.ID,
		Outcome:       outcome,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
	}
}

// reloadResult re-reads the order so a duplicate caller reports the state
// the winning caller left behind.
func (s *reconciliationService) reloadResult(ctx context.Context, id uuid.UUID, outcome Outcome) (*ReconcileResult, error) {
	order, _, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	return s.result(order, outcome), nil
}
