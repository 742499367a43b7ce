package service

import (
	"context"

	"tile-depot/internal/model"

	"github.com/google/uuid"
)

// OrderService defines operations for placing and reading orders.
type OrderService interface {
	// PlaceOrder reserves stock, prices and persists an order atomically.
	PlaceOrder(ctx context.Context, req *model.PlaceOrderRequest) (*model.Order, error)

	// GetByID returns an order visible to actor, or model.ErrOrderNotFound.
	GetByID(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error)

	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Order, error)
}

// Condition decides, under the order row lock, whether a transition applies.
type Condition func(order *model.Order) bool

// StateMachine changes order status under the lifecycle rules.
type StateMachine interface {
	// Transition moves the order to target on behalf of actor.
	Transition(ctx context.Context, orderID uuid.UUID, target model.OrderStatus, actor model.Actor) (*model.Order, error)

	// TransitionIf is Transition guarded by cond. When cond rejects the
	// locked order nothing changes and changed is false.
	TransitionIf(ctx context.Context, orderID uuid.UUID, target model.OrderStatus, actor model.Actor, cond Condition) (order *model.Order, changed bool, err error)

	// Cancel cancels a pending order owned by userID.
	Cancel(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error)
}

// PaymentService reconciles orders with the payment gateway.
type PaymentService interface {
	// CreateCheckout opens a hosted checkout for an online-payment order.
	CreateCheckout(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.CheckoutSession, error)

	// GetCheckoutStatus reads a checkout session of an order the actor may see.
	GetCheckoutStatus(ctx context.Context, actor model.Actor, sessionID string) (*model.CheckoutSession, error)

	// CreatePaymentIntent opens a payment intent for an online-payment order.
	CreatePaymentIntent(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.PaymentIntent, error)

	// GetPaymentIntentStatus reads a payment intent of an order the actor may see.
	GetPaymentIntentStatus(ctx context.Context, actor model.Actor, intentID string) (*model.PaymentIntent, error)

	// HandleEvent ingests one webhook delivery. It never fails; every
	// problem is logged and reflected in the returned outcome.
	HandleEvent(ctx context.Context, signature string, body []byte) model.Ack
}

// Sender delivers notifications without reporting failures to the caller.
type Sender interface {
	Send(ctx context.Context, n model.Notification)
}
