package service

import (
	"context"
	"fmt"
	"time"

	"merocart/internal/config"
	"merocart/internal/gateway"
	"merocart/internal/model"
	"merocart/internal/notify"
	"merocart/internal/promo"
	"merocart/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// checkoutService implements CheckoutService.
type checkoutService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	paymentRepo repository.PaymentRepository
	cartRepo    repository.CartRepository
	promoEngine promo.Engine
	gateways    *gateway.Registry
	notifier    notify.Notifier
	cfg         config.CheckoutConfig
	logger      zerolog.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	paymentRepo repository.PaymentRepository,
	cartRepo repository.CartRepository,
	promoEngine promo.Engine,
	gateways *gateway.Registry,
	notifier notify.Notifier,
	cfg config.CheckoutConfig,
	logger zerolog.Logger,
) CheckoutService {
	return &checkoutService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		paymentRepo: paymentRepo,
		cartRepo:    cartRepo,
		promoEngine: promoEngine,
		gateways:    gateways,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With().Str("service", "checkout").Logger(),
	}
}

// Checkout drives the saga: validate → price → reserve+create → authorize.
// Stock reservation and order creation share one transaction, so an
// insufficient-stock failure aborts before any order row exists. A gateway
// failure after the commit runs compensation before surfacing the error.
func (s *checkoutService) Checkout(ctx context.Context, userID uuid.UUID, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	adapter, err := s.gateways.Lookup(req.Method)
	if err != nil {
		return nil, err
	}

	items, subtotal, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	promoCode := ""
	if req.PromoCode != nil {
		promoCode = *req.PromoCode
	}
	discount, err := s.promoEngine.ComputeDiscount(ctx, promoCode, subtotal)
	if err != nil {
		s.logger.Warn().Str("promo_code", promoCode).Err(err).Msg("promo code rejected")
		return nil, err
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Subtotal:      subtotal,
		ShippingFee:   s.cfg.ShippingFee,
		Discount:      discount,
		TotalAmount:   model.ComputeTotal(subtotal, s.cfg.ShippingFee, discount),
		Status:        model.OrderPending,
		PaymentStatus: model.PaymentPending,
		Address:       req.Address,
		PromoCode:     req.PromoCode,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for i := range items {
		items[i].OrderID = order.ID
	}

	payment := &model.Payment{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Method:    req.Method,
		Status:    model.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.reserveAndCreate(ctx, order, items, payment); err != nil {
		return nil, err
	}

	auth, err := adapter.BuildAuthorization(ctx, order)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Str("method", string(req.Method)).
			Msg("authorization failed, compensating")

		if _, compErr := compensate(ctx, s.orderRepo, s.productRepo, s.paymentRepo, order.ID, nil, s.logger); compErr != nil {
			s.logger.Error().Err(compErr).Str("order_id", order.ID.String()).Msg("compensation failed")
		}
		return nil, err
	}

	if auth.Confirmed {
		return s.commitCashOnDelivery(ctx, order, auth)
	}

	// The confirmation that eventually arrives must prove it settles this
	// order, which requires the issued reference to be on record before the
	// customer is handed to the provider.
	if err := s.paymentRepo.SetReference(ctx, order.ID, auth.Reference); err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to record authorization reference, compensating")

		if _, compErr := compensate(ctx, s.orderRepo, s.productRepo, s.paymentRepo, order.ID, nil, s.logger); compErr != nil {
			s.logger.Error().Err(compErr).Str("order_id", order.ID.String()).Msg("compensation failed")
		}
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("method", string(req.Method)).
		Float64("total_amount", order.TotalAmount).
		Msg("order awaiting authorization")

	return &model.CheckoutResponse{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		RedirectURL:   auth.RedirectURL,
		FormAction:    auth.FormAction,
		FormFields:    auth.FormFields,
	}, nil
}

// priceItems snapshots catalogue prices onto order items and computes the
// subtotal. Every product must exist.
func (s *checkoutService) priceItems(ctx context.Context, reqItems []model.CheckoutItem) ([]model.OrderItem, float64, error) {
	ids := make([]string, len(reqItems))
	for i, item := range reqItems {
		ids[i] = item.ProductID
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load products: %w", err)
	}

	prices := make(map[string]float64, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	items := make([]model.OrderItem, len(reqItems))
	subtotal := 0.0
	for i, reqItem := range reqItems {
		price, ok := prices[reqItem.ProductID]
		if !ok {
			s.logger.Warn().Str("product_id", reqItem.ProductID).Msg("unknown product in cart")
			return nil, 0, model.ErrProductNotFound
		}

		items[i] = model.OrderItem{
			ID:        uuid.New(),
			ProductID: reqItem.ProductID,
			Quantity:  reqItem.Quantity,
			UnitPrice: price,
		}
		subtotal += items[i].Subtotal()
	}

	return items, subtotal, nil
}

// reserveAndCreate reserves stock and persists the order, its items and the
// payment record in one transaction.
func (s *checkoutService) reserveAndCreate(ctx context.Context, order *model.Order, items []model.OrderItem, payment *model.Payment) error {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = s.productRepo.ReserveStock(ctx, tx, items); err != nil {
		return err
	}

	if err = s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	if err = s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}

	if err = s.paymentRepo.Create(ctx, tx, payment); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Int("item_count", len(items)).
		Msg("stock reserved, order created")

	return nil
}

// commitCashOnDelivery confirms the order while leaving payment pending;
// the courier collects payment on delivery.
func (s *checkoutService) commitCashOnDelivery(ctx context.Context, order *model.Order, auth *gateway.Authorization) (*model.CheckoutResponse, error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	tracking := newTrackingNumber()
	eta := estimatedDelivery(s.cfg.DeliveryDays)

	won, err := s.orderRepo.MarkConfirmedPendingPayment(ctx, tx, order.ID, tracking, eta)
	if err != nil {
		return nil, err
	}
	if !won {
		err = model.ErrInvalidState
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}

	order.Status = model.OrderConfirmed
	order.TrackingNumber = &tracking
	order.EstimatedDelivery = &eta

	s.fireCommitSideEffects(ctx, order)

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("tracking_number", tracking).
		Msg("cash-on-delivery order confirmed")

	return &model.CheckoutResponse{
		OrderID:       order.ID,
		Status:        model.OrderConfirmed,
		PaymentStatus: model.PaymentPending,
		TotalAmount:   order.TotalAmount,
		Confirmed:     true,
	}, nil
}

// fireCommitSideEffects clears the cart and dispatches the confirmation
// event. Both are best-effort: a failure here never unwinds a committed
// order.
func (s *checkoutService) fireCommitSideEffects(ctx context.Context, order *model.Order) {
	if err := s.cartRepo.ClearCart(ctx, order.UserID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", order.UserID.String()).Msg("failed to clear cart")
	}

	if err := s.notifier.Notify(ctx, notify.EventOrderConfirmed, order); err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish confirmation event")
	}
}

// GetOrder retrieves an order with its items.
func (s *checkoutService) GetOrder(ctx context.Context, id uuid.UUID) (*model.OrderResponse, error) {
	order, items, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order == nil {
		return nil, nil
	}

	return &model.OrderResponse{Order: order, Items: items}, nil
}

// CancelOrder cancels administratively, running the same compensation path
// the saga uses. Cancelling an already-resolved order is a no-op reported as
// an invalid state.
func (s *checkoutService) CancelOrder(ctx context.Context, id uuid.UUID, reason string) error {
	order, _, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if order == nil {
		return model.ErrOrderNotFound
	}

	won, err := compensate(ctx, s.orderRepo, s.productRepo, s.paymentRepo, id, nil, s.logger)
	if err != nil {
		return err
	}
	if !won {
		return model.ErrInvalidState
	}

	s.logger.Info().
		Str("order_id", id.String()).
		Str("reason", reason).
		Msg("order cancelled")

	order.Status = model.OrderCancelled
	if order.PaymentStatus == model.PaymentCompleted {
		order.PaymentStatus = model.PaymentRefunded
	} else {
		order.PaymentStatus = model.PaymentFailed
	}

	if err := s.notifier.Notify(ctx, notify.EventOrderCancelled, order); err != nil {
		s.logger.Warn().Err(err).Str("order_id", id.String()).Msg("failed to publish cancellation event")
	}

	return nil
}

// validateRequest rejects malformed carts before any state mutation.
func (s *checkoutService) validateRequest(req *model.CheckoutRequest) error {
	if req == nil || len(req.Items) == 0 {
		return model.ErrEmptyCart
	}

	if !req.Method.Valid() {
		return model.ErrInvalidMethod
	}

	for i, item := range req.Items {
		if item.ProductID == "" {
			return model.NewDomainError(model.ErrCodeMissingField, fmt.Sprintf("item %d: product ID is required", i))
		}
		if item.Quantity <= 0 {
			s.logger.Warn().
				Int("item_index", i).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("invalid quantity")
			return model.ErrInvalidQuantity
		}
	}

	addr := req.Address
	if addr.FullName == "" || addr.Phone == "" || addr.City == "" || addr.Street == "" {
		return model.NewDomainError(model.ErrCodeMissingField, "shipping address is incomplete")
	}

	return nil
}
