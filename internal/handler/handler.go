package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"tile-depot/internal/middleware"
	"tile-depot/internal/model"

	"github.com/rs/zerolog"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code, code and message.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Str("code", code).Str("error", message).Int("status", status).Msg("handler error")
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: message})
}

// writeServiceError maps a service error to its HTTP answer. Unknown errors
// become a 500 with fallback as the message.
func writeServiceError(w http.ResponseWriter, err error, fallback string, logger zerolog.Logger) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg(fallback)
		message = fallback
	}
	writeError(w, status, code, message, logger)
}

func classify(err error) (status int, code, message string) {
	var stock *model.InsufficientStockError
	if errors.As(err, &stock) {
		return http.StatusConflict, model.ErrCodeOutOfStock, stock.Error()
	}

	var illegal *model.IllegalTransitionError
	if errors.As(err, &illegal) {
		return http.StatusConflict, model.ErrCodeIllegalTransition, illegal.Error()
	}

	// The gateway cause stays in the logs.
	if errors.Is(err, model.ErrPaymentGatewayUnavailable) {
		return http.StatusBadGateway, model.ErrCodePaymentUnavailable, model.ErrPaymentGatewayUnavailable.Message
	}

	var domain *model.DomainError
	if !errors.As(err, &domain) {
		return http.StatusInternalServerError, model.ErrCodeInternalError, ""
	}

	switch domain {
	case model.ErrOrderNotFound:
		status = http.StatusNotFound
	case model.ErrOutOfStock, model.ErrIllegalTransition:
		status = http.StatusConflict
	case model.ErrTransitionForbidden:
		status = http.StatusForbidden
	case model.ErrDuplicateOrderNumber:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusBadRequest
	}
	return status, domain.Code, domain.Message
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// requireActor returns the caller identity or answers 401.
func requireActor(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, model.ErrCodeUnauthorised, "user identity is required", logger)
		return model.Actor{}, false
	}
	return actor, true
}
