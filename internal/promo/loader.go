package promo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tile-depot/internal/model"

	"github.com/rs/zerolog"
)

// fileLoader reads catalogue files from a local directory.
type fileLoader struct {
	dir    string
	logger zerolog.Logger
}

// NewFileLoader creates a loader rooted at dir. Absolute names ignore dir.
func NewFileLoader(dir string, logger zerolog.Logger) Loader {
	return &fileLoader{
		dir:    dir,
		logger: logger.With().Str("component", "promo-loader").Logger(),
	}
}

func (l *fileLoader) Load(ctx context.Context, name string) ([]model.PromoCode, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.dir, name)
	}

	l.logger.Info().Str("file", path).Msg("loading promo catalogue")

	file, err := os.Open(path)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to open promo catalogue")
		return nil, fmt.Errorf("failed to open promo catalogue %s: %w", path, err)
	}
	defer file.Close()

	promos, err := ParseGzip(ctx, file)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to parse promo catalogue")
		return nil, fmt.Errorf("promo catalogue %s: %w", path, err)
	}

	l.logger.Info().
		Str("file", path).
		Int("promos_loaded", len(promos)).
		Msg("promo catalogue loaded")

	return promos, nil
}
