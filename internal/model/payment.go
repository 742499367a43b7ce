package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Webhook event types delivered by the payment gateway.
const (
	EventCheckoutPaid     = "checkout_session.payment.paid"
	EventPaymentPaid      = "payment.paid"
	EventPaymentFailed    = "payment.failed"
	EventSourceChargeable = "source.chargeable"
)

// Webhook processing outcomes, recorded per event and used as metric labels.
const (
	OutcomeApplied   = "applied"
	OutcomeNoop      = "noop"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"

	// Money was captured for an order that can no longer take it and
	// needs a manual refund.
	OutcomePaidAfterCancel   = "paid_after_cancel"
	OutcomeUnexpectedPayment = "unexpected_payment"
)

// WebhookEvent is a parsed, verified gateway delivery.
type WebhookEvent struct {
	EventID    string
	Type       string
	ArtifactID string
	// PaymentIntentID is set for payment.* events and used as a lookup fallback.
	PaymentIntentID string
	OrderID         *uuid.UUID
	Payload         json.RawMessage
}

// Ack is what webhook ingestion returns; delivery is always acknowledged.
type Ack struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Outcome   string `json:"outcome"`
}

// CheckoutRequest asks for a hosted checkout page or a payment intent for an order.
type CheckoutRequest struct {
	OrderID uuid.UUID `json:"orderId"`
}

// CheckoutSession is the client-facing reference to a remote checkout.
type CheckoutSession struct {
	ID          string    `json:"id"`
	OrderID     uuid.UUID `json:"orderId"`
	CheckoutURL string    `json:"checkoutUrl"`
	Status      string    `json:"status,omitempty"`
}

// PaymentIntent is the client-facing reference to a remote payment intent.
// ClientKey lets the storefront attach a payment method directly.
type PaymentIntent struct {
	ID        string    `json:"id"`
	OrderID   uuid.UUID `json:"orderId"`
	ClientKey string    `json:"clientKey,omitempty"`
	Status    string    `json:"status,omitempty"`
	Amount    int64     `json:"amount"`
}
