package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tile-depot/internal/config"
	"tile-depot/internal/metrics"
	"tile-depot/internal/model"
	"tile-depot/internal/payment"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsk_test_secret"

type paymentFixture struct {
	svc      PaymentService
	orders   *MockOrderRepository
	events   *MockWebhookEvents
	states   *MockStateMachine
	gateway  *MockGateway
	cache    *MockCache
	verifier *payment.Verifier
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		orders:   new(MockOrderRepository),
		events:   new(MockWebhookEvents),
		states:   new(MockStateMachine),
		gateway:  new(MockGateway),
		cache:    new(MockCache),
		verifier: payment.NewVerifier(webhookSecret, false, 0),
	}
	cfg := config.PaymentConfig{
		SuccessURL: "https://tiledepot.ph/orders/success",
		CancelURL:  "https://tiledepot.ph/orders/cancel",
	}
	f.svc = NewPaymentService(f.orders, f.events, f.states, f.gateway, f.verifier, f.cache, nil, cfg, zerolog.Nop())
	return f
}

func payableOrder(method model.PaymentMethod, status model.OrderStatus) *model.Order {
	id := uuid.New()
	return &model.Order{
		ID:            id,
		OrderNumber:   "ORD-1767225600123-ABCDEF123",
		UserID:        "owner",
		PaymentMethod: method,
		Status:        status,
		Subtotal:      dec("251.00"),
		Discount:      dec("0"),
		Tax:           dec("0"),
		Total:         dec("251.00"),
		Items: []model.OrderItem{
			{OrderID: id, Position: 1, ProductID: "P1", Name: "Porcelain 30x30", UnitPrice: dec("125.50"), Quantity: 2},
		},
	}
}

func TestPaymentService_CreateCheckout_Success(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	order := payableOrder(model.PaymentGCash, model.StatusPending)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.gateway.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p payment.CheckoutParams) bool {
		return len(p.LineItems) == 1 &&
			p.LineItems[0].Amount == 12550 &&
			p.LineItems[0].Quantity == 2 &&
			p.PaymentMethodTypes[0] == "gcash" &&
			p.Metadata["order_id"] == order.ID.String() &&
			p.ReferenceNumber == order.OrderNumber &&
			p.SuccessURL == "https://tiledepot.ph/orders/success"
	})).Return(&payment.Session{ID: "cs_123", CheckoutURL: "https://checkout.paymongo.com/cs_123", Status: "active"}, nil)
	f.orders.On("SetPaymentReference", ctx, order.ID, "cs_123").Return(nil)

	session, err := f.svc.CreateCheckout(ctx, model.UserActor("owner"), order.ID)

	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.ID)
	assert.Equal(t, order.ID, session.OrderID)
	assert.Equal(t, "https://checkout.paymongo.com/cs_123", session.CheckoutURL)
	f.gateway.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestPaymentService_CreateCheckout_SummaryLineWhenDiscounted(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	order := payableOrder(model.PaymentMaya, model.StatusCompleted)
	order.Discount = dec("25.10")
	order.Total = dec("225.90")

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.gateway.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p payment.CheckoutParams) bool {
		return len(p.LineItems) == 1 &&
			p.LineItems[0].Amount == 22590 &&
			p.LineItems[0].Quantity == 1 &&
			p.PaymentMethodTypes[0] == "paymaya"
	})).Return(&payment.Session{ID: "cs_9"}, nil)
	f.orders.On("SetPaymentReference", ctx, order.ID, "cs_9").Return(nil)

	_, err := f.svc.CreateCheckout(ctx, model.UserActor("owner"), order.ID)

	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
}

func TestPaymentService_CreateCheckout_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		order   func() *model.Order
		actor   model.Actor
		wantErr error
	}{
		{
			name:    "Cash on delivery",
			order:   func() *model.Order { return payableOrder(model.PaymentCOD, model.StatusPending) },
			actor:   model.UserActor("owner"),
			wantErr: model.ErrOrderNotPayable,
		},
		{
			name:    "Cancelled order",
			order:   func() *model.Order { return payableOrder(model.PaymentGCash, model.StatusCancelled) },
			actor:   model.UserActor("owner"),
			wantErr: model.ErrOrderNotPayable,
		},
		{
			name: "Below gateway minimum",
			order: func() *model.Order {
				o := payableOrder(model.PaymentGCash, model.StatusPending)
				o.Total = dec("19.99")
				return o
			},
			actor:   model.UserActor("owner"),
			wantErr: model.ErrAmountBelowMinimum,
		},
		{
			name:    "Someone else's order",
			order:   func() *model.Order { return payableOrder(model.PaymentGCash, model.StatusPending) },
			actor:   model.UserActor("intruder"),
			wantErr: model.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			order := tt.order()
			f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

			_, err := f.svc.CreateCheckout(ctx, tt.actor, order.ID)

			assert.ErrorIs(t, err, tt.wantErr)
			f.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
		})
	}
}

func TestPaymentService_CreateCheckout_GatewayDown(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	order := payableOrder(model.PaymentGCash, model.StatusPending)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.gateway.On("CreateCheckoutSession", ctx, mock.Anything).
		Return(nil, &payment.GatewayError{StatusCode: 503, Body: "maintenance"})

	_, err := f.svc.CreateCheckout(ctx, model.UserActor("owner"), order.ID)

	assert.ErrorIs(t, err, model.ErrPaymentGatewayUnavailable)
	var gwErr *payment.GatewayError
	assert.True(t, errors.As(err, &gwErr))
	f.orders.AssertNotCalled(t, "SetPaymentReference", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_GetCheckoutStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Owner sees the session", func(t *testing.T) {
		f := newPaymentFixture()
		order := payableOrder(model.PaymentGCash, model.StatusPending)
		f.gateway.On("GetCheckoutSession", ctx, "cs_1").Return(&payment.Session{
			ID: "cs_1", Status: "paid", Metadata: map[string]string{"order_id": order.ID.String()},
		}, nil)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

		s, err := f.svc.GetCheckoutStatus(ctx, model.UserActor("owner"), "cs_1")

		require.NoError(t, err)
		assert.Equal(t, "paid", s.Status)
		assert.Equal(t, order.ID, s.OrderID)
	})

	t.Run("Other users get not found", func(t *testing.T) {
		f := newPaymentFixture()
		order := payableOrder(model.PaymentGCash, model.StatusPending)
		f.gateway.On("GetCheckoutSession", ctx, "cs_1").Return(&payment.Session{
			ID: "cs_1", Status: "active", CheckoutURL: "https://checkout.paymongo.com/cs_1",
			Metadata: map[string]string{"order_id": order.ID.String()},
		}, nil)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

		s, err := f.svc.GetCheckoutStatus(ctx, model.UserActor("intruder"), "cs_1")

		assert.ErrorIs(t, err, model.ErrOrderNotFound)
		assert.Nil(t, s)
	})

	t.Run("Admin resolves by payment reference", func(t *testing.T) {
		f := newPaymentFixture()
		order := payableOrder(model.PaymentGCash, model.StatusPending)
		f.gateway.On("GetCheckoutSession", ctx, "cs_2").Return(&payment.Session{ID: "cs_2", Status: "active"}, nil)
		f.orders.On("GetByPaymentReference", ctx, "cs_2").Return(order, nil)

		s, err := f.svc.GetCheckoutStatus(ctx, model.AdminActor("ops"), "cs_2")

		require.NoError(t, err)
		assert.Equal(t, order.ID, s.OrderID)
	})

	t.Run("Session without a local order", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("GetCheckoutSession", ctx, "cs_3").Return(&payment.Session{ID: "cs_3"}, nil)
		f.orders.On("GetByPaymentReference", ctx, "cs_3").Return(nil, nil)

		_, err := f.svc.GetCheckoutStatus(ctx, model.AdminActor("ops"), "cs_3")
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})

	t.Run("Unknown session", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("GetCheckoutSession", ctx, "cs_x").Return(nil, &payment.GatewayError{StatusCode: 404})

		_, err := f.svc.GetCheckoutStatus(ctx, model.UserActor("owner"), "cs_x")
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})

	t.Run("Gateway unreachable", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("GetCheckoutSession", ctx, "cs_1").Return(nil, errors.New("dial tcp: timeout"))

		_, err := f.svc.GetCheckoutStatus(ctx, model.UserActor("owner"), "cs_1")
		assert.ErrorIs(t, err, model.ErrPaymentGatewayUnavailable)
	})
}

func TestPaymentService_CreatePaymentIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newPaymentFixture()
		order := payableOrder(model.PaymentMaya, model.StatusPending)

		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
		f.gateway.On("CreatePaymentIntent", ctx, mock.MatchedBy(func(p payment.IntentParams) bool {
			return p.Amount == 25100 &&
				p.PaymentMethodTypes[0] == "paymaya" &&
				p.Metadata["order_id"] == order.ID.String() &&
				p.Metadata["order_number"] == order.OrderNumber
		})).Return(&payment.Intent{ID: "pi_1", ClientKey: "pi_1_client_k", Status: "awaiting_payment_method"}, nil)
		f.orders.On("SetPaymentReference", ctx, order.ID, "pi_1").Return(nil)

		intent, err := f.svc.CreatePaymentIntent(ctx, model.UserActor("owner"), order.ID)

		require.NoError(t, err)
		assert.Equal(t, "pi_1", intent.ID)
		assert.Equal(t, order.ID, intent.OrderID)
		assert.Equal(t, "pi_1_client_k", intent.ClientKey)
		assert.Equal(t, int64(25100), intent.Amount)
		f.gateway.AssertExpectations(t)
		f.orders.AssertExpectations(t)
	})

	t.Run("Cash on delivery is not payable", func(t *testing.T) {
		f := newPaymentFixture()
		order := payableOrder(model.PaymentCOD, model.StatusPending)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := f.svc.CreatePaymentIntent(ctx, model.UserActor("owner"), order.ID)

		assert.ErrorIs(t, err, model.ErrOrderNotPayable)
		f.gateway.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
	})

	t.Run("Gateway down", func(t *testing.T) {
		f := newPaymentFixture()
		order := payableOrder(model.PaymentGCash, model.StatusPending)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
		f.gateway.On("CreatePaymentIntent", ctx, mock.Anything).Return(nil, errors.New("connection reset"))

		_, err := f.svc.CreatePaymentIntent(ctx, model.UserActor("owner"), order.ID)

		assert.ErrorIs(t, err, model.ErrPaymentGatewayUnavailable)
		f.orders.AssertNotCalled(t, "SetPaymentReference", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentService_GetPaymentIntentStatus(t *testing.T) {
	ctx := context.Background()
	order := payableOrder(model.PaymentGCash, model.StatusPending)

	tests := []struct {
		name    string
		actor   model.Actor
		wantErr error
	}{
		{"Owner", model.UserActor("owner"), nil},
		{"Admin", model.AdminActor("ops"), nil},
		{"Other user", model.UserActor("intruder"), model.ErrOrderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			f.gateway.On("GetPaymentIntent", ctx, "pi_1").Return(&payment.Intent{
				ID: "pi_1", ClientKey: "secret", Status: "succeeded", Amount: 25100,
				Metadata: map[string]string{"order_id": order.ID.String()},
			}, nil)
			f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

			intent, err := f.svc.GetPaymentIntentStatus(ctx, tt.actor, "pi_1")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "succeeded", intent.Status)
			assert.Equal(t, order.ID, intent.OrderID)
			assert.Empty(t, intent.ClientKey)
		})
	}
}

func eventBody(eventID, eventType, artifactID string, orderID *uuid.UUID) []byte {
	metadata := `{}`
	if orderID != nil {
		metadata = fmt.Sprintf(`{"order_id":%q}`, orderID.String())
	}
	return []byte(fmt.Sprintf(
		`{"data":{"id":%q,"type":"event","attributes":{"type":%q,"livemode":false,"data":{"id":%q,"attributes":{"metadata":%s}}}}}`,
		eventID, eventType, artifactID, metadata,
	))
}

func (f *paymentFixture) sign(body []byte) string {
	return f.verifier.Sign(time.Now(), body)
}

func TestPaymentService_HandleEvent_PaidConfirmsPendingOrder(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	order := payableOrder(model.PaymentGCash, model.StatusPending)
	body := eventBody("evt_1", model.EventCheckoutPaid, "cs_123", &order.ID)

	f.cache.On("Seen", ctx, "evt_1").Return(false, nil)
	f.events.On("Record", ctx, "evt_1", model.EventCheckoutPaid).Return(false, nil)
	f.states.On("TransitionIf", ctx, order.ID, model.StatusConfirmed, model.SystemActor).Return(order, nil)
	f.events.On("MarkProcessed", ctx, "evt_1", model.OutcomeApplied, "").Return(nil)
	f.cache.On("Mark", ctx, "evt_1").Return(nil)

	ack := f.svc.HandleEvent(ctx, f.sign(body), body)

	assert.True(t, ack.Received)
	assert.False(t, ack.Duplicate)
	assert.Equal(t, model.OutcomeApplied, ack.Outcome)
	f.events.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestPaymentService_HandleEvent_PaidIsForwardOnly(t *testing.T) {
	for _, status := range []model.OrderStatus{model.StatusConfirmed, model.StatusShipped, model.StatusDelivered, model.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			f := newPaymentFixture()
			order := payableOrder(model.PaymentGCash, status)
			body := eventBody("evt_2", model.EventPaymentPaid, "pay_1", &order.ID)

			f.cache.On("Seen", ctx, "evt_2").Return(false, nil)
			f.events.On("Record", ctx, "evt_2", model.EventPaymentPaid).Return(false, nil)
			f.states.On("TransitionIf", ctx, order.ID, model.StatusConfirmed, model.SystemActor).Return(order, nil)
			f.events.On("MarkProcessed", ctx, "evt_2", model.OutcomeNoop, "").Return(nil)
			f.cache.On("Mark", ctx, "evt_2").Return(nil)

			ack := f.svc.HandleEvent(ctx, f.sign(body), body)

			assert.Equal(t, model.OutcomeNoop, ack.Outcome)
		})
	}
}

func TestPaymentService_HandleEvent_PaidOrderThatCannotTakeIt(t *testing.T) {
	tests := []struct {
		name    string
		order   *model.Order
		outcome string
	}{
		{"Cancelled online order", payableOrder(model.PaymentGCash, model.StatusCancelled), model.OutcomePaidAfterCancel},
		{"Pending cash on delivery order", payableOrder(model.PaymentCOD, model.StatusPending), model.OutcomeUnexpectedPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newPaymentFixture()
			var logs bytes.Buffer
			m := metrics.New()
			f.svc = NewPaymentService(f.orders, f.events, f.states, f.gateway, f.verifier, f.cache, m,
				config.PaymentConfig{}, zerolog.New(&logs))
			body := eventBody("evt_late", model.EventCheckoutPaid, "cs_late", &tt.order.ID)

			f.cache.On("Seen", ctx, "evt_late").Return(false, nil)
			f.events.On("Record", ctx, "evt_late", model.EventCheckoutPaid).Return(false, nil)
			f.states.On("TransitionIf", ctx, tt.order.ID, model.StatusConfirmed, model.SystemActor).Return(tt.order, nil)
			f.events.On("MarkProcessed", ctx, "evt_late", tt.outcome, "").Return(nil)
			f.cache.On("Mark", ctx, "evt_late").Return(nil)

			ack := f.svc.HandleEvent(ctx, f.sign(body), body)

			assert.True(t, ack.Received)
			assert.Equal(t, tt.outcome, ack.Outcome)
			f.events.AssertExpectations(t)

			assert.Contains(t, logs.String(), `"level":"error"`)
			assert.Contains(t, logs.String(), `"order_id":"`+tt.order.ID.String()+`"`)
			assert.Contains(t, logs.String(), "refund required")

			expected := fmt.Sprintf(`
# HELP tiledepot_payments_requiring_refund_total Captured payments for orders that could not take them, by reason.
# TYPE tiledepot_payments_requiring_refund_total counter
tiledepot_payments_requiring_refund_total{reason=%q} 1
`, tt.outcome)
			assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "tiledepot_payments_requiring_refund_total"))
		})
	}
}

func TestPaymentService_HandleEvent_PaidResolvesByPaymentIntent(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	order := payableOrder(model.PaymentGCash, model.StatusPending)
	body := []byte(`{"data":{"id":"evt_pi","type":"event","attributes":{"type":"payment.paid","livemode":false,"data":{"id":"pay_1","type":"payment","attributes":{"payment_intent_id":"pi_1"}}}}}`)

	f.cache.On("Seen", ctx, "evt_pi").Return(false, nil)
	f.events.On("Record", ctx, "evt_pi", model.EventPaymentPaid).Return(false, nil)
	f.orders.On("GetByPaymentReference", ctx, "pay_1").Return(nil, nil)
	f.orders.On("GetByPaymentReference", ctx, "pi_1").Return(order, nil)
	f.states.On("TransitionIf", ctx, order.ID, model.StatusConfirmed, model.SystemActor).Return(order, nil)
	f.events.On("MarkProcessed", ctx, "evt_pi", model.OutcomeApplied, "").Return(nil)
	f.cache.On("Mark", ctx, "evt_pi").Return(nil)

	ack := f.svc.HandleEvent(ctx, f.sign(body), body)

	assert.Equal(t, model.OutcomeApplied, ack.Outcome)
	f.orders.AssertExpectations(t)
}

func TestPaymentService_HandleEvent_Duplicates(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	body := eventBody("evt_3", model.EventCheckoutPaid, "cs_1", &orderID)

	t.Run("Cache hit skips the database", func(t *testing.T) {
		f := newPaymentFixture()
		f.cache.On("Seen", ctx, "evt_3").Return(true, nil)

		ack := f.svc.HandleEvent(ctx, f.sign(body), body)

		assert.True(t, ack.Duplicate)
		assert.Equal(t, model.OutcomeDuplicate, ack.Outcome)
		f.events.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
		f.states.AssertNotCalled(t, "TransitionIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Ledger hit", func(t *testing.T) {
		f := newPaymentFixture()
		f.cache.On("Seen", ctx, "evt_3").Return(false, nil)
		f.events.On("Record", ctx, "evt_3", model.EventCheckoutPaid).Return(true, nil)
		f.cache.On("Mark", ctx, "evt_3").Return(nil)

		ack := f.svc.HandleEvent(ctx, f.sign(body), body)

		assert.True(t, ack.Duplicate)
		f.states.AssertNotCalled(t, "TransitionIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.events.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Cache outage falls through to the ledger", func(t *testing.T) {
		f := newPaymentFixture()
		f.cache.On("Seen", ctx, "evt_3").Return(false, errors.New("redis: connection refused"))
		f.events.On("Record", ctx, "evt_3", model.EventCheckoutPaid).Return(true, nil)
		f.cache.On("Mark", ctx, "evt_3").Return(errors.New("redis: connection refused"))

		ack := f.svc.HandleEvent(ctx, f.sign(body), body)

		assert.True(t, ack.Received)
		assert.Equal(t, model.OutcomeDuplicate, ack.Outcome)
	})
}

func TestPaymentService_HandleEvent_PaymentFailed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		order  *model.Order
		expect string
	}{
		{"Pending online order is cancelled", payableOrder(model.PaymentGCash, model.StatusPending), model.OutcomeApplied},
		{"COD order is untouched", payableOrder(model.PaymentCOD, model.StatusPending), model.OutcomeNoop},
		{"Completed order is untouched", payableOrder(model.PaymentMaya, model.StatusCompleted), model.OutcomeNoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			body := eventBody("evt_f", model.EventPaymentFailed, "pay_9", &tt.order.ID)

			f.cache.On("Seen", ctx, "evt_f").Return(false, nil)
			f.events.On("Record", ctx, "evt_f", model.EventPaymentFailed).Return(false, nil)
			f.states.On("TransitionIf", ctx, tt.order.ID, model.StatusCancelled, model.SystemActor).Return(tt.order, nil)
			f.events.On("MarkProcessed", ctx, "evt_f", tt.expect, "").Return(nil)
			f.cache.On("Mark", ctx, "evt_f").Return(nil)

			ack := f.svc.HandleEvent(ctx, f.sign(body), body)

			assert.Equal(t, tt.expect, ack.Outcome)
			f.events.AssertExpectations(t)
		})
	}
}

func TestPaymentService_HandleEvent_ResolvesByPaymentReference(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	order := payableOrder(model.PaymentGCash, model.StatusPending)
	body := eventBody("evt_r", model.EventCheckoutPaid, "cs_ref", nil)

	f.cache.On("Seen", ctx, "evt_r").Return(false, nil)
	f.events.On("Record", ctx, "evt_r", model.EventCheckoutPaid).Return(false, nil)
	f.orders.On("GetByPaymentReference", ctx, "cs_ref").Return(order, nil)
	f.states.On("TransitionIf", ctx, order.ID, model.StatusConfirmed, model.SystemActor).Return(order, nil)
	f.events.On("MarkProcessed", ctx, "evt_r", model.OutcomeApplied, "").Return(nil)
	f.cache.On("Mark", ctx, "evt_r").Return(nil)

	ack := f.svc.HandleEvent(ctx, f.sign(body), body)

	assert.Equal(t, model.OutcomeApplied, ack.Outcome)
}

func TestPaymentService_HandleEvent_UnknownOrderIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	body := eventBody("evt_u", model.EventCheckoutPaid, "cs_nobody", nil)

	f.cache.On("Seen", ctx, "evt_u").Return(false, nil)
	f.events.On("Record", ctx, "evt_u", model.EventCheckoutPaid).Return(false, nil)
	f.orders.On("GetByPaymentReference", ctx, "cs_nobody").Return(nil, nil)
	f.events.On("MarkProcessed", ctx, "evt_u", model.OutcomeIgnored, "").Return(nil)
	f.cache.On("Mark", ctx, "evt_u").Return(nil)

	ack := f.svc.HandleEvent(ctx, f.sign(body), body)

	assert.Equal(t, model.OutcomeIgnored, ack.Outcome)
}

func TestPaymentService_HandleEvent_OtherTypesIgnored(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	body := eventBody("evt_s", model.EventSourceChargeable, "src_1", nil)

	f.cache.On("Seen", ctx, "evt_s").Return(false, nil)
	f.events.On("Record", ctx, "evt_s", model.EventSourceChargeable).Return(false, nil)
	f.events.On("MarkProcessed", ctx, "evt_s", model.OutcomeIgnored, "").Return(nil)
	f.cache.On("Mark", ctx, "evt_s").Return(nil)

	ack := f.svc.HandleEvent(ctx, f.sign(body), body)

	assert.Equal(t, model.OutcomeIgnored, ack.Outcome)
	f.states.AssertNotCalled(t, "TransitionIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_HandleEvent_ProcessingFailureIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	orderID := uuid.New()
	body := eventBody("evt_e", model.EventCheckoutPaid, "cs_1", &orderID)

	f.cache.On("Seen", ctx, "evt_e").Return(false, nil)
	f.events.On("Record", ctx, "evt_e", model.EventCheckoutPaid).Return(false, nil)
	f.states.On("TransitionIf", ctx, orderID, model.StatusConfirmed, model.SystemActor).
		Return(nil, errors.New("deadlock detected"))
	f.events.On("MarkProcessed", ctx, "evt_e", model.OutcomeFailed, "deadlock detected").Return(nil)

	ack := f.svc.HandleEvent(ctx, f.sign(body), body)

	assert.True(t, ack.Received)
	assert.Equal(t, model.OutcomeFailed, ack.Outcome)
	f.cache.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything)
	f.events.AssertExpectations(t)
}

func TestPaymentService_HandleEvent_Rejections(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	body := eventBody("evt_x", model.EventCheckoutPaid, "cs_1", &orderID)

	t.Run("Bad signature", func(t *testing.T) {
		f := newPaymentFixture()
		forged := payment.NewVerifier("not-the-secret", false, 0).Sign(time.Now(), body)

		ack := f.svc.HandleEvent(ctx, forged, body)

		assert.True(t, ack.Received)
		assert.Equal(t, model.OutcomeRejected, ack.Outcome)
		f.events.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing signature", func(t *testing.T) {
		f := newPaymentFixture()

		ack := f.svc.HandleEvent(ctx, "", body)

		assert.Equal(t, model.OutcomeRejected, ack.Outcome)
	})

	t.Run("Malformed body", func(t *testing.T) {
		f := newPaymentFixture()
		garbage := []byte(`{"data":`)

		ack := f.svc.HandleEvent(ctx, f.sign(garbage), garbage)

		assert.True(t, ack.Received)
		assert.Equal(t, model.OutcomeMalformed, ack.Outcome)
		f.cache.AssertNotCalled(t, "Seen", mock.Anything, mock.Anything)
	})

	t.Run("Ledger unavailable", func(t *testing.T) {
		f := newPaymentFixture()
		f.cache.On("Seen", ctx, "evt_x").Return(false, nil)
		f.events.On("Record", ctx, "evt_x", model.EventCheckoutPaid).Return(false, errors.New("db down"))

		ack := f.svc.HandleEvent(ctx, f.sign(body), body)

		assert.True(t, ack.Received)
		assert.Equal(t, model.OutcomeFailed, ack.Outcome)
		f.states.AssertNotCalled(t, "TransitionIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentService_HandleEvent_NoSecretSkipsVerification(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	f.svc = NewPaymentService(f.orders, f.events, f.states, f.gateway, nil, nil, nil, config.PaymentConfig{}, zerolog.Nop())
	body := eventBody("evt_n", model.EventSourceChargeable, "src_1", nil)

	f.events.On("Record", ctx, "evt_n", model.EventSourceChargeable).Return(false, nil)
	f.events.On("MarkProcessed", ctx, "evt_n", model.OutcomeIgnored, "").Return(nil)

	ack := f.svc.HandleEvent(ctx, "", body)

	assert.Equal(t, model.OutcomeIgnored, ack.Outcome)
}
