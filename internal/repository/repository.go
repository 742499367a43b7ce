package repository

import (
	"context"
	"time"

	"tile-depot/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InventoryLedger owns per-product stock and sold counters.
// Mutations run inside the caller's transaction.
type InventoryLedger interface {
	// Reserve atomically decrements stock and increments sold by qty.
	// It fails with *model.InsufficientStockError or model.ErrProductNotFound
	// and leaves the row untouched in that case.
	Reserve(ctx context.Context, tx pgx.Tx, productID string, qty int) (*model.Reservation, error)

	// Restore returns qty units to stock and decrements sold, floored at zero.
	Restore(ctx context.Context, tx pgx.Tx, productID string, qty int) error

	// GetByID retrieves a single product by its ID.
	GetByID(ctx context.Context, id string) (*model.Product, error)
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// Create inserts the order and its item snapshot within the transaction.
	// A clash on the order number yields model.ErrDuplicateOrderNumber.
	Create(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// GetByID retrieves an order with its items. A missing order is (nil, nil).
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetForUpdate reads and row-locks an order inside the transaction.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// UpdateStatus writes the new status and returns the new updated_at.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus) (time.Time, error)

	// SetPaymentReference records the gateway artifact id for the order.
	SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error

	// GetByPaymentReference finds the order a gateway artifact belongs to.
	GetByPaymentReference(ctx context.Context, reference string) (*model.Order, error)

	// ListByUser returns a user's orders, newest first, without items.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Order, error)
}

// PromoRepository defines data access for promo codes.
type PromoRepository interface {
	// GetForUpdate row-locks a promo code. A missing code is (nil, nil).
	GetForUpdate(ctx context.Context, tx pgx.Tx, code string) (*model.PromoCode, error)

	// IncrementUsage bumps used_count within the transaction.
	IncrementUsage(ctx context.Context, tx pgx.Tx, code string) error

	// Upsert inserts or updates catalogue rows, never touching used_count.
	Upsert(ctx context.Context, promos []model.PromoCode) (int, error)
}

// WebhookEventRepository is the durable idempotency ledger for gateway events.
type WebhookEventRepository interface {
	// Record stores the event id if unseen and reports whether the event
	// has already been processed.
	Record(ctx context.Context, eventID, eventType string) (processed bool, err error)

	// MarkProcessed stamps the outcome of handling the event.
	MarkProcessed(ctx context.Context, eventID, outcome, errText string) error
}

// NotificationRepository persists customer notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
}
