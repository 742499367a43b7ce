package handler

import (
	"io"
	"net/http"

	"tile-depot/internal/model"
	"tile-depot/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SignatureHeader carries the gateway's webhook signature.
const SignatureHeader = "Paymongo-Signature"

// PaymentHandler handles checkout and webhook requests.
type PaymentHandler struct {
	payments service.PaymentService
	logger   zerolog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(payments service.PaymentService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger.With().Str("handler", "payment").Logger(),
	}
}

// CreateCheckout handles POST /api/payments/checkout requests.
func (h *PaymentHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}
	if req.OrderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "order ID is required", h.logger)
		return
	}

	session, err := h.payments.CreateCheckout(r.Context(), actor, req.OrderID)
	if err != nil {
		writeServiceError(w, err, "failed to create checkout", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GetCheckout handles GET /api/payments/checkout/{id} requests.
func (h *PaymentHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	session, err := h.payments.GetCheckoutStatus(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "failed to get checkout status", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// CreateIntent handles POST /api/payments/intent requests.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}
	if req.OrderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "order ID is required", h.logger)
		return
	}

	intent, err := h.payments.CreatePaymentIntent(r.Context(), actor, req.OrderID)
	if err != nil {
		writeServiceError(w, err, "failed to create payment intent", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

// GetIntent handles GET /api/payments/intent/{id} requests.
func (h *PaymentHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	intent, err := h.payments.GetPaymentIntentStatus(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "failed to get payment intent", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, intent)
}

// Webhook handles POST /api/payments/webhook. The gateway always gets a 200
// so it stops retrying; the outcome is reported in the body.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read webhook body")
		writeJSON(w, http.StatusOK, model.Ack{Received: true, Outcome: model.OutcomeMalformed})
		return
	}

	ack := h.payments.HandleEvent(r.Context(), r.Header.Get(SignatureHeader), body)
	writeJSON(w, http.StatusOK, ack)
}
