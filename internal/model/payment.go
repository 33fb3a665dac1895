package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod identifies the gateway chosen at checkout.
type PaymentMethod string

const (
	MethodStripe PaymentMethod = "stripe"
	MethodKhalti PaymentMethod = "khalti"
	MethodEsewa  PaymentMethod = "esewa"
	MethodCOD    PaymentMethod = "cod"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodStripe, MethodKhalti, MethodEsewa, MethodCOD:
		return true
	}
	return false
}

// Payment is the per-order payment record: one row per order, tracking the
// chosen gateway, its status, the provider transaction reference used as the
// idempotency key, and the raw provider payload kept for audit.
type Payment struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	OrderID       uuid.UUID     `json:"orderId" db:"order_id"`
	Method        PaymentMethod `json:"method" db:"method"`
	Status        PaymentStatus `json:"status" db:"status"`
	TransactionID *string       `json:"transactionId,omitempty" db:"transaction_id"`
	RawPayload    []byte        `json:"-" db:"raw_payload"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}
