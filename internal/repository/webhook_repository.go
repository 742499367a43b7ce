package repository

import (
	"context"
	"fmt"

	"tile-depot/internal/model"

	"github.com/rs/zerolog"
)

type webhookEventRepository struct {
	pool   Pool
	logger zerolog.Logger
}

// NewWebhookEventRepository creates the PostgreSQL idempotency ledger.
func NewWebhookEventRepository(pool Pool, logger zerolog.Logger) WebhookEventRepository {
	return &webhookEventRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "webhook_event").Logger(),
	}
}

// Record inserts the event id once. Redelivered ids keep their first row.
func (r *webhookEventRepository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	insert := `
		INSERT INTO webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, eventID, eventType); err != nil {
		r.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to record webhook event")
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}

	var processed bool
	err := r.pool.QueryRow(ctx,
		`SELECT processed_at IS NOT NULL FROM webhook_events WHERE event_id = $1`,
		eventID,
	).Scan(&processed)
	if err != nil {
		r.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to read webhook event")
		return false, fmt.Errorf("failed to read webhook event: %w", err)
	}

	return processed, nil
}

// MarkProcessed stamps the event. errText is stored as NULL when empty.
// A failed outcome leaves processed_at unset so a redelivery is retried.
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID, outcome, errText string) error {
	query := `
		UPDATE webhook_events
		SET processed_at = CASE WHEN $4 THEN NOW() ELSE NULL END,
		    outcome = $2,
		    error = NULLIF($3, '')
		WHERE event_id = $1
	`

	done := outcome != model.OutcomeFailed
	if _, err := r.pool.Exec(ctx, query, eventID, outcome, errText, done); err != nil {
		r.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to mark webhook event processed")
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}

	return nil
}
