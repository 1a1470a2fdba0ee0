package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValidationInput carries everything Validate needs; it performs no I/O.
type ValidationInput struct {
	Coupon   *Coupon
	CourseID snowflake.ID
	// Amount is the pre-discount price in minor units.
	Amount int64
	Now    time.Time
	// UserUsage counts the user's completed payments with this coupon.
	UserUsage int64
}

// Validate applies the coupon rules in a fixed order and returns the bounded
// discount. The discount never exceeds MaxDiscountAmount or Amount.
func Validate(in ValidationInput) (Discount, error) {
	c := in.Coupon
	if c == nil || !c.IsActive {
		return Discount{}, ErrInvalidCoupon
	}
	if c.ValidFrom != nil && in.Now.Before(*c.ValidFrom) {
		return Discount{}, ErrCouponNotYetValid
	}
	if c.ValidUntil != nil && in.Now.After(*c.ValidUntil) {
		return Discount{}, ErrCouponExpired
	}
	if c.UsageLimit != UnlimitedUsage && c.UsedCount >= c.UsageLimit {
		return Discount{}, ErrCouponLimitReached
	}
	if c.CourseID != nil && *c.CourseID != in.CourseID {
		return Discount{}, ErrCouponNotApplicable
	}
	if c.MinPurchaseAmount != nil && in.Amount < *c.MinPurchaseAmount {
		return Discount{}, minimumNotMet(*c.MinPurchaseAmount)
	}
	if in.UserUsage >= int64(c.UsageLimitPerUser) {
		return Discount{}, ErrCouponAlreadyUsed
	}

	return Discount{
		Coupon: c,
		Type:   c.DiscountType,
		Amount: DiscountAmount(c, in.Amount),
	}, nil
}

// DiscountAmount computes the bounded discount in minor units, rounding
// percentages half away from zero.
func DiscountAmount(c *Coupon, amount int64) int64 {
	if c == nil || amount <= 0 {
		return 0
	}

	var raw decimal.Decimal
	switch c.DiscountType {
	case DiscountTypePercentage:
		raw = decimal.NewFromInt(amount).Mul(c.DiscountValue).Div(hundred)
	case DiscountTypeFixed:
		raw = c.DiscountValue.Mul(hundred)
	default:
		return 0
	}

	discount := raw.Round(0).IntPart()
	if c.MaxDiscountAmount != nil && discount > *c.MaxDiscountAmount {
		discount = *c.MaxDiscountAmount
	}
	if discount > amount {
		discount = amount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
