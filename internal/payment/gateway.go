// Package payment talks to the hosted payment gateway (PayMongo) and
// verifies the webhooks it sends back.
package payment

import (
	"context"
	"fmt"

	"tile-depot/internal/model"

	"github.com/shopspring/decimal"
)

// MinimumAmountCentavos is the smallest checkout the gateway accepts (20.00 PHP).
const MinimumAmountCentavos int64 = 2000

const Currency = "PHP"

// Gateway creates and inspects hosted checkout sessions and payment intents.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	GetCheckoutSession(ctx context.Context, id string) (*Session, error)
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
}

// LineItem is one priced line of a checkout, amount in centavos.
type LineItem struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// Billing pre-fills customer details on the checkout page.
type Billing struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CheckoutParams describes the checkout session to create.
type CheckoutParams struct {
	LineItems          []LineItem
	PaymentMethodTypes []string
	Description        string
	ReferenceNumber    string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
	Billing            *Billing
}

// Session is the gateway's view of a checkout session.
type Session struct {
	ID              string
	CheckoutURL     string
	Status          string
	PaymentIntentID string
	Metadata        map[string]string
}

// IntentParams describes the payment intent to create. Amount is in centavos.
type IntentParams struct {
	Amount             int64
	PaymentMethodTypes []string
	Description        string
	Metadata           map[string]string
}

// Intent is the gateway's view of a payment intent.
type Intent struct {
	ID        string
	ClientKey string
	Status    string
	Amount    int64
	Metadata  map[string]string
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway returned status %d", e.StatusCode)
}

// ToCentavos converts a peso amount to integer centavos, rounding half away from zero.
func ToCentavos(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// MethodTypes maps an order payment method to gateway payment method types.
func MethodTypes(m model.PaymentMethod) []string {
	switch m {
	case model.PaymentGCash:
		return []string{"gcash"}
	case model.PaymentMaya:
		return []string{"paymaya"}
	default:
		return nil
	}
}
