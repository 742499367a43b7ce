//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"

	"tile-depot/internal/config"
	"tile-depot/internal/database"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Seeds a handful of tiles into the database named by the DB_* variables.
// Existing rows keep their stock.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cfg.Logger.App += "-seed"
	logger := config.NewLogger(cfg.Logger)

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	tiles := []struct {
		id, name, price string
		stock           int
	}{
		{"TILE-PORC-6060-GRY", "Porcelain 60x60 Matte Grey", "185.00", 400},
		{"TILE-PORC-3030-WHT", "Porcelain 30x30 Gloss White", "62.50", 1200},
		{"TILE-CER-2040-BEI", "Ceramic Wall 20x40 Beige", "38.75", 800},
		{"TILE-MOS-3030-BLU", "Glass Mosaic Sheet Blue", "420.00", 60},
		{"GROUT-5KG-WHT", "Tile Grout 5kg White", "245.00", 150},
	}

	batch := &pgx.Batch{}
	for _, t := range tiles {
		batch.Queue(
			`INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			t.id, t.name, decimal.RequireFromString(t.price), t.stock,
		)
	}

	results := pool.SendBatch(ctx, batch)
	for _, t := range tiles {
		if _, err := results.Exec(); err != nil {
			results.Close()
			fmt.Fprintf(os.Stderr, "Insert of %s failed: %v\n", t.id, err)
			os.Exit(1)
		}
	}
	if err := results.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Batch failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded %d products into %s\n", len(tiles), cfg.Database.Database)
}
