package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCOD   PaymentMethod = "cod"
	PaymentGCash PaymentMethod = "gcash"
	PaymentMaya  PaymentMethod = "maya"
)

// Valid reports whether m is one of the accepted payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCOD, PaymentGCash, PaymentMaya:
		return true
	}
	return false
}

// Online reports whether m settles through the payment gateway.
func (m PaymentMethod) Online() bool {
	return m == PaymentGCash || m == PaymentMaya
}

// Order represents a customer order (a sale).
type Order struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	OrderNumber      string           `json:"orderNumber" db:"order_number"`
	UserID           string           `json:"userId" db:"user_id"`
	Items            []OrderItem      `json:"items"`
	Subtotal         decimal.Decimal  `json:"subtotal" db:"subtotal"`
	Tax              decimal.Decimal  `json:"tax" db:"tax"`
	Discount         decimal.Decimal  `json:"discount" db:"discount"`
	Total            decimal.Decimal  `json:"total" db:"total"`
	PaymentMethod    PaymentMethod    `json:"paymentMethod" db:"payment_method"`
	Status           OrderStatus      `json:"status" db:"status"`
	ShippingAddress  *ShippingAddress `json:"shippingAddress,omitempty" db:"shipping_address"`
	Notes            string           `json:"notes" db:"notes"`
	PromoCode        *string          `json:"promoCode,omitempty" db:"promo_code"`
	PaymentReference *string          `json:"paymentReference,omitempty" db:"payment_reference"`
	CreatedAt        time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time        `json:"updatedAt" db:"updated_at"`
}

// OrderItem is a line item snapshot taken when the order was placed.
type OrderItem struct {
	ID        uuid.UUID       `json:"-" db:"id"`
	OrderID   uuid.UUID       `json:"-" db:"order_id"`
	Position  int             `json:"-" db:"position"`
	ProductID string          `json:"productId" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice" db:"unit_price"`
	Quantity  int             `json:"quantity" db:"quantity"`
}

// LineTotal is unitPrice × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingAddress is stored as a JSON snapshot on the order.
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// PlaceOrderRequest is the input of the order transaction.
type PlaceOrderRequest struct {
	UserID          string             `json:"-"`
	Items           []OrderItemRequest `json:"items"`
	PaymentMethod   PaymentMethod      `json:"paymentMethod"`
	ShippingAddress *ShippingAddress   `json:"shippingAddress,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	PromoCode       *string            `json:"promoCode,omitempty"`
	// DeclaredTotal is the client's figure; it is checked, never trusted.
	DeclaredTotal *decimal.Decimal `json:"total,omitempty"`
}

// MaxItemQuantity is the most units of one product a single order may carry.
// Stock counters are 32-bit columns.
const MaxItemQuantity = math.MaxInt32

// OrderItemRequest represents a single item in an order request.
type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// StatusChangeRequest is the body of an admin status update.
type StatusChangeRequest struct {
	Status OrderStatus `json:"status"`
}
