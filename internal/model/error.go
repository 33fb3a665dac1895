package model

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeEmptyCart            = "EMPTY_CART"
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidQuantity      = "INVALID_QUANTITY"
	ErrCodeInvalidMethod        = "INVALID_PAYMENT_METHOD"
	ErrCodeInvalidPromoCode     = "INVALID_PROMO_CODE"
	ErrCodeInvalidPromoLength   = "INVALID_PROMO_LENGTH"
	ErrCodeProductNotFound      = "PRODUCT_NOT_FOUND"
	ErrCodeOrderNotFound        = "ORDER_NOT_FOUND"
	ErrCodeInsufficientStock    = "INSUFFICIENT_STOCK"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeGatewayUnavailable   = "GATEWAY_UNAVAILABLE"
	ErrCodePaymentDeclined      = "PAYMENT_DECLINED"
	ErrCodeTamperedConfirmation = "TAMPERED_CONFIRMATION"
	ErrCodeUnauthorised         = "UNAUTHORIZED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// DomainError is an expected business failure carried as a value, never a
// panic. The Code is stable across releases; the Message is user-safe.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrEmptyCart          = NewDomainError(ErrCodeEmptyCart, "Cart must contain at least one item")
	ErrInvalidQuantity    = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrInvalidMethod      = NewDomainError(ErrCodeInvalidMethod, "Unsupported payment method")
	ErrInvalidPromoCode   = NewDomainError(ErrCodeInvalidPromoCode, "Promo code is not recognised")
	ErrInvalidPromoLength = NewDomainError(ErrCodeInvalidPromoLength, "Promo code must be between 8 and 10 characters")
	ErrProductNotFound    = NewDomainError(ErrCodeProductNotFound, "One or more products not found")
	ErrOrderNotFound      = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrInsufficientStock  = NewDomainError(ErrCodeInsufficientStock, "Insufficient stock for one or more items")
	ErrInvalidState       = NewDomainError(ErrCodeInvalidState, "Unknown status value")

	// Gateway failures. Unavailable is retryable by the caller; declined and
	// tampered are terminal and trigger compensation. The tampered message is
	// deliberately generic so verification detail never reaches the client.
	ErrGatewayUnavailable   = NewDomainError(ErrCodeGatewayUnavailable, "Payment provider is temporarily unavailable")
	ErrPaymentDeclined      = NewDomainError(ErrCodePaymentDeclined, "Payment could not be completed")
	ErrTamperedConfirmation = NewDomainError(ErrCodeTamperedConfirmation, "Payment could not be completed")
)
