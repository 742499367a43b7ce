package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Schema is the full DDL for the order engine. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	sold        INTEGER NOT NULL DEFAULT 0 CHECK (sold >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orders (
	id                UUID PRIMARY KEY,
	order_number      TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	subtotal          NUMERIC(12,2) NOT NULL CHECK (subtotal >= 0),
	tax               NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (tax >= 0),
	discount          NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (discount >= 0),
	total             NUMERIC(12,2) NOT NULL CHECK (total >= 0),
	payment_method    TEXT NOT NULL CHECK (payment_method IN ('cash', 'cod', 'gcash', 'maya')),
	status            TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'shipped', 'delivered', 'cancelled', 'completed')),
	shipping_address  JSONB,
	notes             TEXT NOT NULL DEFAULT '',
	promo_code        TEXT,
	payment_reference TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT orders_order_number_key UNIQUE (order_number),
	CONSTRAINT orders_total_check CHECK (total = subtotal + tax - discount)
);

CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_payment_reference
	ON orders(payment_reference) WHERE payment_reference IS NOT NULL;

CREATE TABLE IF NOT EXISTS order_items (
	id          UUID PRIMARY KEY,
	order_id    UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	product_id  TEXT NOT NULL REFERENCES products(id),
	name        TEXT NOT NULL,
	unit_price  NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
	quantity    INTEGER NOT NULL CHECK (quantity > 0),
	UNIQUE (order_id, position)
);

CREATE INDEX IF NOT EXISTS idx_order_items_product_id ON order_items(product_id);

CREATE TABLE IF NOT EXISTS promo_codes (
	code            TEXT PRIMARY KEY,
	discount_type   TEXT NOT NULL CHECK (discount_type IN ('percentage', 'fixed')),
	discount_value  NUMERIC(12,2) NOT NULL CHECK (discount_value >= 0),
	starts_at       TIMESTAMPTZ NOT NULL,
	ends_at         TIMESTAMPTZ NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	usage_limit     INTEGER CHECK (usage_limit IS NULL OR usage_limit >= 0),
	used_count      INTEGER NOT NULL DEFAULT 0,
	CHECK (usage_limit IS NULL OR used_count <= usage_limit)
);

CREATE TABLE IF NOT EXISTS webhook_events (
	event_id      TEXT PRIMARY KEY,
	event_type    TEXT NOT NULL,
	received_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at  TIMESTAMPTZ,
	outcome       TEXT,
	error         TEXT
);

CREATE TABLE IF NOT EXISTS notifications (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	is_read     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id, created_at DESC);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info().Msg("database schema applied")
	return nil
}
