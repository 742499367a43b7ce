package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a promo code reduces the subtotal.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a persisted promotional code.
type PromoCode struct {
	Code          string          `json:"code" db:"code"`
	DiscountType  DiscountType    `json:"discountType" db:"discount_type"`
	DiscountValue decimal.Decimal `json:"discountValue" db:"discount_value"`
	StartsAt      time.Time       `json:"startsAt" db:"starts_at"`
	EndsAt        time.Time       `json:"endsAt" db:"ends_at"`
	IsActive      bool            `json:"isActive" db:"is_active"`
	UsageLimit    *int            `json:"usageLimit,omitempty" db:"usage_limit"`
	UsedCount     int             `json:"usedCount" db:"used_count"`
}

// UsableAt reports whether the code can be redeemed at t.
func (p *PromoCode) UsableAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	if t.Before(p.StartsAt) || t.After(p.EndsAt) {
		return false
	}
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return false
	}
	return true
}

// DiscountFor returns the discount on subtotal, never more than subtotal.
func (p *PromoCode) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch p.DiscountType {
	case DiscountPercentage:
		d = subtotal.Mul(p.DiscountValue).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		d = p.DiscountValue
	}
	d = d.Round(2)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}
