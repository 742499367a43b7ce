package repository

import (
	"context"
	"errors"
	"fmt"

	"tile-depot/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// productRepository implements InventoryLedger using PostgreSQL.
type productRepository struct {
	pool   Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed inventory ledger.
func NewProductRepository(pool Pool, logger zerolog.Logger) InventoryLedger {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// Reserve takes qty units out of stock with a single conditional update, so
// concurrent reservations can never drive stock below zero.
func (r *productRepository) Reserve(ctx context.Context, tx pgx.Tx, productID string, qty int) (*model.Reservation, error) {
	if qty <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	query := `
		UPDATE products
		SET stock = stock - $2, sold = sold + $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING name, price, stock
	`

	res := model.Reservation{ProductID: productID, Quantity: qty}
	err := tx.QueryRow(ctx, query, productID, qty).Scan(&res.Name, &res.UnitPrice, &res.RemainingStock)
	if err == nil {
		r.logger.Debug().
			Str("product_id", productID).
			Int("quantity", qty).
			Int("remaining", res.RemainingStock).
			Msg("stock reserved")
		return &res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to reserve stock")
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	// No row matched: either the product is missing or it is short.
	var name string
	var available int
	err = tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1`, productID).Scan(&name, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Debug().Str("product_id", productID).Msg("product not found")
		return nil, fmt.Errorf("%w: %s", model.ErrProductNotFound, productID)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to read product stock")
		return nil, fmt.Errorf("failed to read product stock: %w", err)
	}

	r.logger.Info().
		Str("product_id", productID).
		Int("requested", qty).
		Int("available", available).
		Msg("insufficient stock")

	return nil, &model.InsufficientStockError{
		ProductID: productID,
		Name:      name,
		Requested: qty,
		Available: available,
	}
}

// Restore gives qty units back to stock.
func (r *productRepository) Restore(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}

	query := `
		UPDATE products
		SET stock = stock + $2, sold = GREATEST(sold - $2, 0), updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, productID, qty)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to restore stock")
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn().Str("product_id", productID).Msg("cannot restore stock for missing product")
		return fmt.Errorf("%w: %s", model.ErrProductNotFound, productID)
	}

	r.logger.Debug().
		Str("product_id", productID).
		Int("quantity", qty).
		Msg("stock restored")

	return nil
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := `
		SELECT id, name, price, stock, sold, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p model.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Sold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("product_id", id).Msg("product not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to query product")
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}
