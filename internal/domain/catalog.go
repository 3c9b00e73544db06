package domain

import "time"

// Product is the catalog view consumed by the order engine: authoritative
// unit price plus the stock ledger counter. The catalog service owns the
// descriptive fields; the order engine only ever mutates CountInStock, and
// only inside a transactional scope.
type Product struct {
	ID           string
	Name         string
	UnitPrice    int64
	CountInStock int64
	UpdatedAt    time.Time
}

// CouponKind distinguishes the two supported discount policies.
type CouponKind string

const (
	// CouponKindFlat deducts a fixed amount in minor units.
	CouponKindFlat CouponKind = "flat"
	// CouponKindPercent deducts a percentage of the subtotal.
	CouponKindPercent CouponKind = "percent"
)

// Coupon is the discount rule resolved for a coupon code.
type Coupon struct {
	Code    string
	Kind    CouponKind
	Amount  int64
	Percent int64
	Active  bool
}

// DiscountFor computes the discount this coupon grants on the given subtotal,
// in minor units. The result is never negative and never exceeds values a
// caller could not clamp; final clamping against the subtotal happens in the
// pricing engine.
func (c Coupon) DiscountFor(subtotal int64) int64 {
	switch c.Kind {
	case CouponKindFlat:
		if c.Amount < 0 {
			return 0
		}
		return c.Amount
	case CouponKindPercent:
		if c.Percent <= 0 {
			return 0
		}
		return subtotal * c.Percent / 100
	default:
		return 0
	}
}
