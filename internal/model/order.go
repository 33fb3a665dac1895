package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus tracks the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderProcessing     OrderStatus = "processing"
	OrderShipped        OrderStatus = "shipped"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
		OrderOutForDelivery, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks the payment lifecycle of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// ShippingAddress is captured verbatim on the order. The checkout core does
// not interpret it beyond requiring the fields to be present.
type ShippingAddress struct {
	FullName string `json:"fullName" db:"ship_full_name"`
	Phone    string `json:"phone" db:"ship_phone"`
	City     string `json:"city" db:"ship_city"`
	Street   string `json:"street" db:"ship_street"`
}

// Order represents a customer order. Orders are never deleted; cancellation
// is a status transition.
type Order struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	UserID            uuid.UUID       `json:"userId" db:"user_id"`
	Subtotal          float64         `json:"subtotal" db:"subtotal"`
	ShippingFee       float64         `json:"shippingFee" db:"shipping_fee"`
	Discount          float64         `json:"discount" db:"discount"`
	TotalAmount       float64         `json:"totalAmount" db:"total_amount"`
	Status            OrderStatus     `json:"status" db:"order_status"`
	PaymentStatus     PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	Address           ShippingAddress `json:"address"`
	PromoCode         *string         `json:"promoCode,omitempty" db:"promo_code"`
	TrackingNumber    *string         `json:"trackingNumber,omitempty" db:"tracking_number"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty" db:"estimated_delivery"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderItem represents a line item in an order. UnitPrice is the catalogue
// price snapshotted at order-creation time; later catalogue changes do not
// affect persisted orders.
type OrderItem struct {
	ID        uuid.UUID `json:"-" db:"id"`
	OrderID   uuid.UUID `json:"-" db:"order_id"`
	ProductID string    `json:"productId" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UnitPrice float64   `json:"unitPrice" db:"unit_price"`
}

// Subtotal returns quantity times the captured unit price.
func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// ComputeTotal derives the order total from its monetary parts, clamped at
// zero so an oversized discount can never produce a negative charge.
func ComputeTotal(subtotal, shippingFee, discount float64) float64 {
	total := subtotal + shippingFee - discount
	if total < 0 {
		return 0
	}
	return total
}

// CheckoutRequest is the payload for starting a checkout.
type CheckoutRequest struct {
	UserID    uuid.UUID       `json:"userId"`
	Items     []CheckoutItem  `json:"items"`
	Method    PaymentMethod   `json:"method"`
	Address   ShippingAddress `json:"address"`
	PromoCode *string         `json:"promoCode,omitempty"`
}

// CheckoutItem is a single cart line in a checkout request.
type CheckoutItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CheckoutResponse is returned once an order has been created and the
// selected gateway has produced its authorization artifact.
type CheckoutResponse struct {
	OrderID       uuid.UUID         `json:"orderId"`
	Status        OrderStatus       `json:"status"`
	PaymentStatus PaymentStatus     `json:"paymentStatus"`
	TotalAmount   float64           `json:"totalAmount"`
	RedirectURL   string            `json:"redirectUrl,omitempty"`
	FormAction    string            `json:"formAction,omitempty"`
	FormFields    map[string]string `json:"formFields,omitempty"`
	Confirmed     bool              `json:"confirmed"`
}

// OrderResponse is the payload for order status polls.
type OrderResponse struct {
	Order *Order      `json:"order"`
	Items []OrderItem `json:"items"`
}
