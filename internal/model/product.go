package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product holds the catalogue fields the order engine reads and writes.
type Product struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Stock     int             `json:"stock" db:"stock"`
	Sold      int             `json:"sold" db:"sold"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// Reservation is the outcome of a successful stock reservation.
type Reservation struct {
	ProductID      string
	Name           string
	UnitPrice      decimal.Decimal
	Quantity       int
	RemainingStock int
}
