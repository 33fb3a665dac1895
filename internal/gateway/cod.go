package gateway

import (
	"context"

	"merocart/internal/model"

	"github.com/rs/zerolog"
)

// codAdapter implements Adapter for cash on delivery. There is no external
// provider: authorization is confirmed immediately and payment is collected
// physically after fulfilment.
type codAdapter struct {
	logger zerolog.Logger
}

// NewCOD creates the cash-on-delivery adapter.
func NewCOD(logger zerolog.Logger) Adapter {
	return &codAdapter{
		logger: logger.With().Str("gateway", "cod").Logger(),
	}
}

func (a *codAdapter) Method() model.PaymentMethod {
	return model.MethodCOD
}

// BuildAuthorization synthesizes an immediate confirmation.
func (a *codAdapter) BuildAuthorization(ctx context.Context, order *model.Order) (*Authorization, error) {
	a.logger.Debug().Str("order_id", order.ID.String()).Msg("confirmed locally")

	return &Authorization{
		Confirmed: true,
		Reference: "cod-" + order.ID.String(),
	}, nil
}

// VerifyConfirmation accepts the locally synthesized confirmation. Payment
// stays pending until collected on delivery, so the verdict is pending
// rather than succeeded.
func (a *codAdapter) VerifyConfirmation(ctx context.Context, conf Confirmation) (*Verification, error) {
	return &Verification{
		Authentic:     true,
		Pending:       true,
		TransactionID: "cod-" + conf.OrderID.String(),
	}, nil
}
