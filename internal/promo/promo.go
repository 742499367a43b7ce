// Package promo imports the promo code catalogue from gzipped CSV files,
// either from local disk or from S3, into the promo_codes table.
package promo

import (
	"context"

	"tile-depot/internal/model"
)

// Loader defines the interface for loading catalogue files.
type Loader interface {
	// Load reads one gzipped CSV catalogue file.
	Load(ctx context.Context, name string) ([]model.PromoCode, error)
}

// Store persists imported codes. Usage counters of existing codes must be kept.
type Store interface {
	Upsert(ctx context.Context, promos []model.PromoCode) (int, error)
}
