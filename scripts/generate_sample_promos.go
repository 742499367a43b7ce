//go:build ignore

package main

import (
	"compress/gzip"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"tile-depot/internal/model"
	"tile-depot/internal/promo"

	"github.com/shopspring/decimal"
)

// generateSamplePromos writes two catalogue files for local runs.
// PROMO_FILES=promos_core.csv.gz,promos_seasonal.csv.gz imports both;
// TILES10 appears in both and the seasonal row wins.
func main() {
	dataDir := "data"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Hour)
	yearEnd := time.Date(now.Year(), 12, 31, 23, 59, 59, 0, time.UTC)
	limit := func(n int) *int { return &n }

	catalogues := map[string][]model.PromoCode{
		"promos_core.csv.gz": {
			{Code: "TILES10", DiscountType: model.DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				StartsAt: now.AddDate(0, -1, 0), EndsAt: yearEnd, IsActive: true},
			{Code: "WELCOME100", DiscountType: model.DiscountFixed, DiscountValue: decimal.NewFromInt(100),
				StartsAt: now.AddDate(0, -1, 0), EndsAt: yearEnd, UsageLimit: limit(500), IsActive: true},
			{Code: "RETIRED5", DiscountType: model.DiscountPercentage, DiscountValue: decimal.NewFromInt(5),
				StartsAt: now.AddDate(-1, 0, 0), EndsAt: now.AddDate(0, -2, 0), IsActive: false},
		},
		"promos_seasonal.csv.gz": {
			{Code: "TILES10", DiscountType: model.DiscountPercentage, DiscountValue: decimal.NewFromInt(12),
				StartsAt: now.AddDate(0, -1, 0), EndsAt: yearEnd, IsActive: true},
			{Code: "RAINYDAY", DiscountType: model.DiscountFixed, DiscountValue: decimal.RequireFromString("250.00"),
				StartsAt: now, EndsAt: now.AddDate(0, 3, 0), UsageLimit: limit(50), IsActive: true},
		},
	}

	for filename, promos := range catalogues {
		filePath := filepath.Join(dataDir, filename)

		if err := createCatalogueFile(filePath, promos); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d codes\n", filePath, len(promos))
	}

	fmt.Println("\nSample promo catalogues created successfully!")
	fmt.Println("  - TILES10    12% off (seasonal file overrides core)")
	fmt.Println("  - WELCOME100 100.00 off, 500 uses")
	fmt.Println("  - RAINYDAY   250.00 off, 50 uses, three months")
	fmt.Println("  - RETIRED5   inactive")
}

func createCatalogueFile(filePath string, promos []model.PromoCode) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	if err := promo.Write(gzipWriter, promos); err != nil {
		gzipWriter.Close()
		return fmt.Errorf("failed to write catalogue: %w", err)
	}

	return gzipWriter.Close()
}
