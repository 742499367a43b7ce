package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeInvalidPaymentMethod = "INVALID_PAYMENT_METHOD"
	ErrCodeInvalidQuantity      = "INVALID_QUANTITY"
	ErrCodeProductNotFound      = "PRODUCT_NOT_FOUND"
	ErrCodeOutOfStock           = "OUT_OF_STOCK"
	ErrCodeInvalidPromoCode     = "INVALID_PROMO_CODE"
	ErrCodeTotalMismatch        = "TOTAL_MISMATCH"
	ErrCodeDuplicateOrderNumber = "DUPLICATE_ORDER_NUMBER"
	ErrCodeOrderNotFound        = "ORDER_NOT_FOUND"
	ErrCodeIllegalTransition    = "ILLEGAL_TRANSITION"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUnauthorised         = "UNAUTHORIZED"
	ErrCodeOrderNotPayable      = "ORDER_NOT_PAYABLE"
	ErrCodeAmountBelowMinimum   = "AMOUNT_BELOW_MINIMUM"
	ErrCodePaymentUnavailable   = "PAYMENT_SERVICE_UNAVAILABLE"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// DomainError is a business rule violation carrying an API error code.
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
	ErrMissingUser          = NewDomainError(ErrCodeValidation, "User ID is required")
	ErrEmptyOrder           = NewDomainError(ErrCodeValidation, "Items are required and must be a non-empty array")
	ErrMissingProductID     = NewDomainError(ErrCodeValidation, "Every item requires a product ID")
	ErrInvalidQuantity      = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrQuantityTooLarge     = NewDomainError(ErrCodeInvalidQuantity, "Quantity exceeds the maximum for one product")
	ErrInvalidPaymentMethod = NewDomainError(ErrCodeInvalidPaymentMethod, "Valid payment method is required (cash, cod, gcash, or maya)")
	ErrInvalidStatus        = NewDomainError(ErrCodeValidation, "Invalid status")
	ErrProductNotFound      = NewDomainError(ErrCodeProductNotFound, "One or more products not found")
	ErrOutOfStock           = NewDomainError(ErrCodeOutOfStock, "Insufficient stock")
	ErrInvalidPromoCode     = NewDomainError(ErrCodeInvalidPromoCode, "Promo code is not valid or has expired")
	ErrTotalMismatch        = NewDomainError(ErrCodeTotalMismatch, "Declared total does not match the computed order total")
	ErrDuplicateOrderNumber = NewDomainError(ErrCodeDuplicateOrderNumber, "Order number already exists")
	ErrOrderNotFound        = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrIllegalTransition    = NewDomainError(ErrCodeIllegalTransition, "Illegal order status transition")
	ErrTransitionForbidden  = NewDomainError(ErrCodeForbidden, "Actor is not allowed to perform this status change")
	ErrOrderNotPayable      = NewDomainError(ErrCodeOrderNotPayable, "Order cannot be paid online in its current state")
	ErrAmountBelowMinimum   = NewDomainError(ErrCodeAmountBelowMinimum, "Total amount must be at least 20.00 PHP")

	// ErrPaymentGatewayUnavailable is what callers see for any gateway fault.
	ErrPaymentGatewayUnavailable = NewDomainError(ErrCodePaymentUnavailable, "Payment service unavailable, please retry")
)

// InsufficientStockError reports a failed reservation for a single product.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("Insufficient stock for product %q. Available: %d, Requested: %d", name, e.Available, e.Requested)
}

// Is lets callers match any stock shortfall with errors.Is(err, ErrOutOfStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// IllegalTransitionError names the current and attempted status.
type IllegalTransitionError struct {
	OrderID uuid.UUID
	From    OrderStatus
	To      OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
