// Package metrics holds the Prometheus collectors of the order engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tiledepot"

// Metrics is registered on its own registry so tests can build as many
// instances as they like. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	ordersPlaced      *prometheus.CounterVec
	orderFailures     *prometheus.CounterVec
	placeDuration     *prometheus.HistogramVec
	transitions       *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	gatewayRequests   *prometheus.CounterVec
	notifyFailures    *prometheus.CounterVec
	refundsRequired   *prometheus.CounterVec
	orderNumberClash  prometheus.Counter
	promoImportedRows prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_placed_total",
			Help: "Orders committed, by payment method and initial status.",
		}, []string{"payment_method", "status"}),
		orderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_placement_failures_total",
			Help: "Order placements rolled back, by reason.",
		}, []string{"reason"}),
		placeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "order_place_duration_seconds",
			Help:    "Duration of the order placement transaction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_transitions_total",
			Help: "Committed order status transitions.",
		}, []string{"from", "to", "actor"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhook_events_total",
			Help: "Payment webhook deliveries, by event type and outcome.",
		}, []string{"type", "outcome"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_gateway_requests_total",
			Help: "Calls to the payment gateway, by operation and result.",
		}, []string{"operation", "result"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notification_failures_total",
			Help: "Notifications that could not be delivered.",
		}, []string{"sink"}),
		refundsRequired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_requiring_refund_total",
			Help: "Captured payments for orders that could not take them, by reason.",
		}, []string{"reason"}),
		orderNumberClash: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_number_collisions_total",
			Help: "Order placements retried because of an order number collision.",
		}),
		promoImportedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "promo_codes_imported_total",
			Help: "Promo catalogue rows upserted.",
		}),
	}

	reg.MustRegister(
		m.ordersPlaced,
		m.orderFailures,
		m.placeDuration,
		m.transitions,
		m.webhookEvents,
		m.gatewayRequests,
		m.notifyFailures,
		m.refundsRequired,
		m.orderNumberClash,
		m.promoImportedRows,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) OrderPlaced(method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(method, status).Inc()
	m.placeDuration.WithLabelValues("committed").Observe(elapsed.Seconds())
}

func (m *Metrics) OrderFailed(reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.orderFailures.WithLabelValues(reason).Inc()
	m.placeDuration.WithLabelValues("rolled_back").Observe(elapsed.Seconds())
}

func (m *Metrics) OrderNumberCollision() {
	if m == nil {
		return
	}
	m.orderNumberClash.Inc()
}

func (m *Metrics) Transition(from, to, actor string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, actor).Inc()
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) GatewayRequest(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayRequests.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) NotificationFailed(sink string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(sink).Inc()
}

// RefundRequired counts a captured payment that needs a manual refund.
func (m *Metrics) RefundRequired(reason string) {
	if m == nil {
		return
	}
	m.refundsRequired.WithLabelValues(reason).Inc()
}

func (m *Metrics) PromoImported(n int) {
	if m == nil {
		return
	}
	m.promoImportedRows.Add(float64(n))
}
