package service

import (
	"tile-depot/internal/model"

	"github.com/shopspring/decimal"
)

// totalTolerance is the largest accepted gap between a declared and a
// computed total.
var totalTolerance = decimal.RequireFromString("0.01")

// Totals are the money fields of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Subtotal sums unit price times quantity over the snapshot lines.
func Subtotal(items []model.OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum.Round(2)
}

// ComputeTotals prices an order. Tax applies to the discounted subtotal and
// total = subtotal + tax - discount holds exactly.
func ComputeTotals(items []model.OrderItem, promo *model.PromoCode, taxRate decimal.Decimal) Totals {
	t := Totals{Subtotal: Subtotal(items), Discount: decimal.Zero}
	if promo != nil {
		t.Discount = promo.DiscountFor(t.Subtotal)
	}
	t.Tax = t.Subtotal.Sub(t.Discount).Mul(taxRate).Round(2)
	t.Total = t.Subtotal.Add(t.Tax).Sub(t.Discount)
	return t
}

// TotalMatches reports whether a client-declared total agrees with computed.
func TotalMatches(declared, computed decimal.Decimal) bool {
	return declared.Sub(computed).Abs().LessThanOrEqual(totalTolerance)
}

// initialStatus is the status a new order starts in.
func initialStatus(method model.PaymentMethod, awaitConfirmation bool) model.OrderStatus {
	switch {
	case method == model.PaymentCOD:
		return model.StatusPending
	case awaitConfirmation && method.Online():
		return model.StatusPending
	default:
		return model.StatusCompleted
	}
}
