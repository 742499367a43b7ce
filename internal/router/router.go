package router

import (
	"net/http"

	"tile-depot/internal/handler"
	"tile-depot/internal/middleware"

	"github.com/rs/zerolog"
)

// Paths served without an API key. The webhook authenticates by signature.
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
	WebhookPath = "/api/payments/webhook"
)

// New creates a new HTTP router with all routes and middleware configured.
// A nil metricsHandler leaves /metrics unregistered.
func New(
	orderHandler *handler.OrderHandler,
	paymentHandler *handler.PaymentHandler,
	metricsHandler http.Handler,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	if metricsHandler != nil {
		mux.Handle("GET "+MetricsPath, metricsHandler)
	}

	mux.HandleFunc("POST /api/orders", orderHandler.Create)
	mux.HandleFunc("GET /api/orders", orderHandler.List)
	mux.HandleFunc("GET /api/orders/{id}", orderHandler.GetByID)
	mux.HandleFunc("POST /api/orders/{id}/cancel", orderHandler.Cancel)
	mux.HandleFunc("PATCH /api/admin/orders/{id}/status", orderHandler.UpdateStatus)

	mux.HandleFunc("POST /api/payments/checkout", paymentHandler.CreateCheckout)
	mux.HandleFunc("GET /api/payments/checkout/{id}", paymentHandler.GetCheckout)
	mux.HandleFunc("POST /api/payments/intent", paymentHandler.CreateIntent)
	mux.HandleFunc("GET /api/payments/intent/{id}", paymentHandler.GetIntent)
	mux.HandleFunc("POST "+WebhookPath, paymentHandler.Webhook)

	// Apply middleware in order: Recovery -> Logging -> CORS -> APIKeyAuth -> Identity
	var h http.Handler = mux
	h = middleware.Identity(h)
	h = middleware.APIKeyAuth(apiKey, logger, HealthPath, MetricsPath, WebhookPath)(h)
	h = middleware.CORS(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger)(h)

	return h
}
