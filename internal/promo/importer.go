package promo

import (
	"context"
	"fmt"

	"tile-depot/internal/metrics"
	"tile-depot/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Importer loads catalogue files and writes them to the store.
type Importer struct {
	loader  Loader
	store   Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewImporter(loader Loader, store Store, m *metrics.Metrics, logger zerolog.Logger) *Importer {
	return &Importer{
		loader:  loader,
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "promo-importer").Logger(),
	}
}

// Import loads files concurrently and upserts the merged result. When the
// same code appears in several files the one listed last wins. Nothing is
// written if any file fails to load.
func (i *Importer) Import(ctx context.Context, files []string) (int, error) {
	if len(files) == 0 {
		i.logger.Debug().Msg("no promo catalogue files configured")
		return 0, nil
	}

	results := make([][]model.PromoCode, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for idx, name := range files {
		g.Go(func() error {
			promos, err := i.loader.Load(gctx, name)
			if err != nil {
				return fmt.Errorf("failed to load promo catalogue %s: %w", name, err)
			}
			results[idx] = promos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		i.logger.Error().Err(err).Msg("promo catalogue import aborted")
		return 0, err
	}

	merged := merge(results)
	n, err := i.store.Upsert(ctx, merged)
	if err != nil {
		i.logger.Error().Err(err).Int("promos", len(merged)).Msg("failed to store promo catalogue")
		return 0, fmt.Errorf("failed to store promo catalogue: %w", err)
	}

	i.metrics.PromoImported(n)
	i.logger.Info().
		Int("files", len(files)).
		Int("promos", n).
		Msg("promo catalogue imported")

	return n, nil
}

func merge(results [][]model.PromoCode) []model.PromoCode {
	var merged []model.PromoCode
	index := make(map[string]int)
	for _, promos := range results {
		for _, p := range promos {
			if j, ok := index[p.Code]; ok {
				merged[j] = p
				continue
			}
			index[p.Code] = len(merged)
			merged = append(merged, p)
		}
	}
	return merged
}
