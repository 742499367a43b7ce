package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tile-depot/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type promoRepository struct {
	pool   Pool
	logger zerolog.Logger
}

// NewPromoRepository creates a new PostgreSQL-backed promo code repository.
func NewPromoRepository(pool Pool, logger zerolog.Logger) PromoRepository {
	return &promoRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "promo").Logger(),
	}
}

// GetForUpdate locks the promo row. Codes are matched case-insensitively
// and stored upper case.
func (r *promoRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, code string) (*model.PromoCode, error) {
	query := `
		SELECT code, discount_type, discount_value, starts_at, ends_at, is_active, usage_limit, used_count
		FROM promo_codes
		WHERE code = $1
		FOR UPDATE
	`

	var (
		p            model.PromoCode
		discountType string
	)
	err := tx.QueryRow(ctx, query, strings.ToUpper(code)).Scan(
		&p.Code,
		&discountType,
		&p.DiscountValue,
		&p.StartsAt,
		&p.EndsAt,
		&p.IsActive,
		&p.UsageLimit,
		&p.UsedCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("promo_code", code).Msg("promo code not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("promo_code", code).Msg("failed to query promo code")
		return nil, fmt.Errorf("failed to query promo code: %w", err)
	}
	p.DiscountType = model.DiscountType(discountType)

	return &p, nil
}

// IncrementUsage consumes one use of the code.
func (r *promoRepository) IncrementUsage(ctx context.Context, tx pgx.Tx, code string) error {
	query := `UPDATE promo_codes SET used_count = used_count + 1 WHERE code = $1`

	tag, err := tx.Exec(ctx, query, strings.ToUpper(code))
	if err != nil {
		r.logger.Error().Err(err).Str("promo_code", code).Msg("failed to increment promo usage")
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvalidPromoCode
	}

	return nil
}

// Upsert writes catalogue rows in one batch. Existing usage counters are kept.
func (r *promoRepository) Upsert(ctx context.Context, promos []model.PromoCode) (int, error) {
	if len(promos) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO promo_codes (code, discount_type, discount_value, starts_at, ends_at, is_active, usage_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			is_active = EXCLUDED.is_active,
			usage_limit = EXCLUDED.usage_limit
	`

	batch := &pgx.Batch{}
	for _, p := range promos {
		batch.Queue(query,
			strings.ToUpper(p.Code),
			string(p.DiscountType),
			p.DiscountValue,
			p.StartsAt,
			p.EndsAt,
			p.IsActive,
			p.UsageLimit,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range promos {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().Err(err).Str("promo_code", promos[i].Code).Msg("failed to upsert promo code")
			return i, fmt.Errorf("failed to upsert promo code %s: %w", promos[i].Code, err)
		}
	}

	r.logger.Info().Int("count", len(promos)).Msg("promo codes upserted")
	return len(promos), nil
}
