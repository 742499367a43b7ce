// Package notify delivers customer notifications about order changes.
// Delivery is best effort: it never affects the committed order.
package notify

import (
	"context"
	"errors"
	"time"

	"tile-depot/internal/metrics"
	"tile-depot/internal/model"

	"github.com/rs/zerolog"
)

// Notifier delivers a single notification.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort bounds each delivery with a timeout and swallows failures.
type BestEffort struct {
	next    Notifier
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewBestEffort wraps next. A zero timeout defaults to three seconds.
func NewBestEffort(next Notifier, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *BestEffort {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BestEffort{
		next:    next,
		timeout: timeout,
		metrics: m,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Send delivers n and logs any failure. It detaches from the caller's
// cancellation so a finished request does not abort delivery.
func (b *BestEffort) Send(ctx context.Context, n model.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.metrics.NotificationFailed("panic")
			b.logger.Error().Interface("panic", r).Str("user_id", n.UserID).Msg("notification sink panicked")
		}
	}()

	if err := b.next.Notify(ctx, n); err != nil {
		b.metrics.NotificationFailed("sink")
		b.logger.Warn().
			Err(err).
			Str("user_id", n.UserID).
			Str("order_id", n.OrderID.String()).
			Str("title", n.Title).
			Msg("failed to deliver notification")
	}
}

// OrderPlaced builds the notification sent after a successful order.
func OrderPlaced(order *model.Order) model.Notification {
	return model.Notification{
		UserID:  order.UserID,
		Title:   "Order Placed Successfully",
		Message: "Your order " + order.OrderNumber + " has been placed successfully. Total: ₱" + order.Total.StringFixed(2),
		OrderID: order.ID,
		Status:  order.Status,
	}
}

// StatusChanged builds the notification sent after a status transition.
func StatusChanged(order *model.Order) model.Notification {
	return model.Notification{
		UserID:  order.UserID,
		Title:   "Order Status Update - " + order.Status.Title(),
		Message: order.Status.Message() + " (Order " + order.OrderNumber + ")",
		OrderID: order.ID,
		Status:  order.Status,
	}
}
