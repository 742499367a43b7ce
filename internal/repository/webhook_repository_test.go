package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookEventRepository_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("First delivery", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewWebhookEventRepository(mock, zerolog.Nop())

		mock.ExpectExec("INSERT INTO webhook_events").
			WithArgs("evt_1", "payment.paid").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery("SELECT processed_at IS NOT NULL").
			WithArgs("evt_1").
			WillReturnRows(pgxmock.NewRows([]string{"processed"}).AddRow(false))

		processed, err := repo.Record(ctx, "evt_1", "payment.paid")
		require.NoError(t, err)
		assert.False(t, processed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already processed", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewWebhookEventRepository(mock, zerolog.Nop())

		mock.ExpectExec("INSERT INTO webhook_events").
			WithArgs("evt_1", "payment.paid").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery("SELECT processed_at IS NOT NULL").
			WithArgs("evt_1").
			WillReturnRows(pgxmock.NewRows([]string{"processed"}).AddRow(true))

		processed, err := repo.Record(ctx, "evt_1", "payment.paid")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("Insert error", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewWebhookEventRepository(mock, zerolog.Nop())

		mock.ExpectExec("INSERT INTO webhook_events").WillReturnError(errors.New("down"))

		_, err := repo.Record(ctx, "evt_1", "payment.paid")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record webhook event")
	})
}

func TestWebhookEventRepository_MarkProcessed(t *testing.T) {
	t.Run("Applied is final", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewWebhookEventRepository(mock, zerolog.Nop())

		mock.ExpectExec("UPDATE webhook_events").
			WithArgs("evt_1", "applied", "", true).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.MarkProcessed(context.Background(), "evt_1", "applied", ""))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Failed stays retryable", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewWebhookEventRepository(mock, zerolog.Nop())

		mock.ExpectExec("UPDATE webhook_events").
			WithArgs("evt_2", "failed", "connection reset", false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.MarkProcessed(context.Background(), "evt_2", "failed", "connection reset"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
