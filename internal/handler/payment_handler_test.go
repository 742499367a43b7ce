package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tile-depot/internal/model"
	"tile-depot/internal/payment"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPaymentService is a mock implementation of PaymentService.
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreateCheckout(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.CheckoutSession, error) {
	args := m.Called(ctx, actor, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckoutSession), args.Error(1)
}

func (m *MockPaymentService) GetCheckoutStatus(ctx context.Context, actor model.Actor, sessionID string) (*model.CheckoutSession, error) {
	args := m.Called(ctx, actor, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckoutSession), args.Error(1)
}

func (m *MockPaymentService) CreatePaymentIntent(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.PaymentIntent, error) {
	args := m.Called(ctx, actor, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockPaymentService) GetPaymentIntentStatus(ctx context.Context, actor model.Actor, intentID string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, actor, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockPaymentService) HandleEvent(ctx context.Context, signature string, body []byte) model.Ack {
	args := m.Called(ctx, signature, body)
	return args.Get(0).(model.Ack)
}

func TestPaymentHandler_CreateCheckout(t *testing.T) {
	logger := zerolog.Nop()
	orderID := uuid.New()
	customer := model.UserActor("u-1")

	tests := []struct {
		name           string
		body           string
		mockReturn     *model.CheckoutSession
		mockError      error
		expectedStatus int
		expectedCode   string
		expectService  bool
	}{
		{
			name: "Success",
			body: fmt.Sprintf(`{"orderId":%q}`, orderID),
			mockReturn: &model.CheckoutSession{
				ID: "cs_1", OrderID: orderID, CheckoutURL: "https://checkout.paymongo.com/cs_1",
			},
			expectedStatus: http.StatusCreated,
			expectService:  true,
		},
		{
			name:           "Missing order id",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeValidation,
		},
		{
			name:           "Invalid JSON",
			body:           `{"orderId":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
		{
			name:           "Below minimum",
			body:           fmt.Sprintf(`{"orderId":%q}`, orderID),
			mockError:      model.ErrAmountBelowMinimum,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeAmountBelowMinimum,
			expectService:  true,
		},
		{
			name:           "Not payable",
			body:           fmt.Sprintf(`{"orderId":%q}`, orderID),
			mockError:      model.ErrOrderNotPayable,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeOrderNotPayable,
			expectService:  true,
		},
		{
			name: "Gateway unavailable",
			body: fmt.Sprintf(`{"orderId":%q}`, orderID),
			mockError: fmt.Errorf("%w: %w", model.ErrPaymentGatewayUnavailable,
				&payment.GatewayError{StatusCode: 401, Body: `{"errors":[{"detail":"API key sk_live_xyz is invalid"}]}`}),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   model.ErrCodePaymentUnavailable,
			expectService:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := new(MockPaymentService)
			handler := NewPaymentHandler(payments, logger)
			if tt.expectService {
				payments.On("CreateCheckout", mock.Anything, customer, orderID).Return(tt.mockReturn, tt.mockError)
			}

			req := asActor(httptest.NewRequest(http.MethodPost, "/api/payments/checkout", bytes.NewBufferString(tt.body)), customer)
			w := httptest.NewRecorder()

			handler.CreateCheckout(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				resp := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, resp.Error)
				assert.NotContains(t, resp.Message, "sk_live")
			}
			if tt.expectService {
				payments.AssertExpectations(t)
			}
		})
	}
}

func TestPaymentHandler_GetCheckout(t *testing.T) {
	payments := new(MockPaymentService)
	handler := NewPaymentHandler(payments, zerolog.Nop())
	payments.On("GetCheckoutStatus", mock.Anything, model.UserActor("u-1"), "cs_1").
		Return(&model.CheckoutSession{ID: "cs_1", Status: "paid"}, nil)
	payments.On("GetCheckoutStatus", mock.Anything, model.UserActor("u-1"), "cs_gone").Return(nil, model.ErrOrderNotFound)

	req := asActor(httptest.NewRequest(http.MethodGet, "/api/payments/checkout/cs_1", nil), model.UserActor("u-1"))
	req.SetPathValue("id", "cs_1")
	w := httptest.NewRecorder()
	handler.GetCheckout(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var got model.CheckoutSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "paid", got.Status)

	req = asActor(httptest.NewRequest(http.MethodGet, "/api/payments/checkout/cs_gone", nil), model.UserActor("u-1"))
	req.SetPathValue("id", "cs_gone")
	w = httptest.NewRecorder()
	handler.GetCheckout(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentHandler_CreateIntent(t *testing.T) {
	orderID := uuid.New()
	customer := model.UserActor("u-1")

	tests := []struct {
		name           string
		body           string
		mockReturn     *model.PaymentIntent
		mockError      error
		expectedStatus int
		expectedCode   string
		expectService  bool
	}{
		{
			name:           "Success",
			body:           fmt.Sprintf(`{"orderId":%q}`, orderID),
			mockReturn:     &model.PaymentIntent{ID: "pi_1", OrderID: orderID, ClientKey: "pi_1_client", Amount: 25100},
			expectedStatus: http.StatusCreated,
			expectService:  true,
		},
		{
			name:           "Missing order id",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeValidation,
		},
		{
			name:           "Someone else's order",
			body:           fmt.Sprintf(`{"orderId":%q}`, orderID),
			mockError:      model.ErrOrderNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   model.ErrCodeOrderNotFound,
			expectService:  true,
		},
		{
			name:           "Gateway unavailable",
			body:           fmt.Sprintf(`{"orderId":%q}`, orderID),
			mockError:      fmt.Errorf("%w: %w", model.ErrPaymentGatewayUnavailable, &payment.GatewayError{StatusCode: 500}),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   model.ErrCodePaymentUnavailable,
			expectService:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := new(MockPaymentService)
			handler := NewPaymentHandler(payments, zerolog.Nop())
			if tt.expectService {
				payments.On("CreatePaymentIntent", mock.Anything, customer, orderID).Return(tt.mockReturn, tt.mockError)
			}

			req := asActor(httptest.NewRequest(http.MethodPost, "/api/payments/intent", bytes.NewBufferString(tt.body)), customer)
			w := httptest.NewRecorder()

			handler.CreateIntent(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Error)
			} else {
				var got model.PaymentIntent
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, "pi_1_client", got.ClientKey)
			}
			if tt.expectService {
				payments.AssertExpectations(t)
			}
		})
	}
}

func TestPaymentHandler_GetIntent(t *testing.T) {
	payments := new(MockPaymentService)
	handler := NewPaymentHandler(payments, zerolog.Nop())
	payments.On("GetPaymentIntentStatus", mock.Anything, model.UserActor("u-1"), "pi_1").
		Return(&model.PaymentIntent{ID: "pi_1", Status: "succeeded"}, nil)
	payments.On("GetPaymentIntentStatus", mock.Anything, model.UserActor("u-2"), "pi_1").Return(nil, model.ErrOrderNotFound)

	req := asActor(httptest.NewRequest(http.MethodGet, "/api/payments/intent/pi_1", nil), model.UserActor("u-1"))
	req.SetPathValue("id", "pi_1")
	w := httptest.NewRecorder()
	handler.GetIntent(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "succeeded")

	req = asActor(httptest.NewRequest(http.MethodGet, "/api/payments/intent/pi_1", nil), model.UserActor("u-2"))
	req.SetPathValue("id", "pi_1")
	w = httptest.NewRecorder()
	handler.GetIntent(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/payments/intent/pi_1", nil)
	req.SetPathValue("id", "pi_1")
	w = httptest.NewRecorder()
	handler.GetIntent(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentHandler_Webhook_AlwaysOK(t *testing.T) {
	tests := []struct {
		name string
		ack  model.Ack
	}{
		{"Applied", model.Ack{Received: true, Outcome: model.OutcomeApplied}},
		{"Duplicate", model.Ack{Received: true, Duplicate: true, Outcome: model.OutcomeDuplicate}},
		{"Rejected signature", model.Ack{Received: true, Outcome: model.OutcomeRejected}},
		{"Processing failed", model.Ack{Received: true, Outcome: model.OutcomeFailed}},
		{"Paid after cancel", model.Ack{Received: true, Outcome: model.OutcomePaidAfterCancel}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := new(MockPaymentService)
			handler := NewPaymentHandler(payments, zerolog.Nop())
			body := []byte(`{"data":{"id":"evt_1"}}`)
			payments.On("HandleEvent", mock.Anything, "t=1,te=abc,li=", body).Return(tt.ack)

			req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
			req.Header.Set(SignatureHeader, "t=1,te=abc,li=")
			w := httptest.NewRecorder()

			handler.Webhook(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			var got model.Ack
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.ack, got)
			payments.AssertExpectations(t)
		})
	}
}

func TestPaymentHandler_Webhook_OversizedBody(t *testing.T) {
	payments := new(MockPaymentService)
	handler := NewPaymentHandler(payments, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(make([]byte, maxBodyBytes+1)))
	w := httptest.NewRecorder()

	handler.Webhook(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.OutcomeMalformed)
	payments.AssertNotCalled(t, "HandleEvent", mock.Anything, mock.Anything, mock.Anything)
}
