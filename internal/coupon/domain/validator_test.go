package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func activeCoupon() *Coupon {
	return &Coupon{
		ID:                1,
		Code:              "SAVE20",
		DiscountType:      DiscountTypePercentage,
		DiscountValue:     decimal.NewFromInt(20),
		ValidFrom:         timePtr(now.Add(-24 * time.Hour)),
		ValidUntil:        timePtr(now.Add(24 * time.Hour)),
		UsageLimit:        UnlimitedUsage,
		UsageLimitPerUser: 1,
		IsActive:          true,
	}
}

func TestValidatePercentageClampedToMax(t *testing.T) {
	c := activeCoupon()
	c.MaxDiscountAmount = int64Ptr(1500)

	d, err := Validate(ValidationInput{Coupon: c, CourseID: 10, Amount: 10000, Now: now})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), d.Amount)
	assert.Equal(t, DiscountTypePercentage, d.Type)
}

func TestValidateFixedNeverExceedsAmount(t *testing.T) {
	c := activeCoupon()
	c.DiscountType = DiscountTypeFixed
	c.DiscountValue = decimal.NewFromInt(50)

	d, err := Validate(ValidationInput{Coupon: c, CourseID: 10, Amount: 3000, Now: now})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), d.Amount)
}

func TestDiscountAmountRoundsHalfUp(t *testing.T) {
	c := activeCoupon()
	c.DiscountValue = decimal.RequireFromString("12.5")

	// 12.5% of 1.99 = 0.24875 -> 25 minor units.
	assert.Equal(t, int64(25), DiscountAmount(c, 199))
	assert.Equal(t, int64(0), DiscountAmount(c, 0))
}

func TestValidateRejections(t *testing.T) {
	otherCourse := snowflake.ID(99)

	cases := []struct {
		name   string
		mutate func(c *Coupon)
		in     func(in *ValidationInput)
		want   error
		kind   ErrorKind
	}{
		{name: "missing", mutate: nil, want: ErrInvalidCoupon, kind: KindInvalid},
		{name: "inactive", mutate: func(c *Coupon) { c.IsActive = false }, want: ErrInvalidCoupon, kind: KindInvalid},
		{name: "not_yet_valid", mutate: func(c *Coupon) { c.ValidFrom = timePtr(now.Add(time.Hour)) }, want: ErrCouponNotYetValid, kind: KindExpired},
		{name: "expired", mutate: func(c *Coupon) { c.ValidUntil = timePtr(now.Add(-time.Hour)) }, want: ErrCouponExpired, kind: KindExpired},
		{name: "global_limit", mutate: func(c *Coupon) { c.UsageLimit = 5; c.UsedCount = 5 }, want: ErrCouponLimitReached, kind: KindLimitReached},
		{name: "other_course", mutate: func(c *Coupon) { c.CourseID = &otherCourse }, want: ErrCouponNotApplicable, kind: KindNotApplicable},
		{name: "minimum", mutate: func(c *Coupon) { c.MinPurchaseAmount = int64Ptr(20000) }, want: ErrMinimumPurchaseNotMet, kind: KindMinimumNotMet},
		{name: "per_user", in: func(in *ValidationInput) { in.UserUsage = 1 }, want: ErrCouponAlreadyUsed, kind: KindLimitReached},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c *Coupon
			if tc.name != "missing" {
				c = activeCoupon()
			}
			if tc.mutate != nil {
				tc.mutate(c)
			}
			in := ValidationInput{Coupon: c, CourseID: 10, Amount: 10000, Now: now}
			if tc.in != nil {
				tc.in(&in)
			}

			_, err := Validate(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want))
			ce, ok := AsCouponError(err)
			require.True(t, ok)
			assert.Equal(t, tc.kind, ce.Kind)
		})
	}
}

func TestValidateOrderExpiryBeforeLimit(t *testing.T) {
	c := activeCoupon()
	c.ValidUntil = timePtr(now.Add(-time.Hour))
	c.UsageLimit = 1
	c.UsedCount = 1

	_, err := Validate(ValidationInput{Coupon: c, CourseID: 10, Amount: 10000, Now: now})
	assert.ErrorIs(t, err, ErrCouponExpired)
}

func TestValidateCourseScopedCouponMatches(t *testing.T) {
	c := activeCoupon()
	course := snowflake.ID(10)
	c.CourseID = &course

	_, err := Validate(ValidationInput{Coupon: c, CourseID: 10, Amount: 10000, Now: now})
	assert.NoError(t, err)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE20", NormalizeCode("  save20 "))
}

func TestValidateOpenWindow(t *testing.T) {
	cases := []struct {
		name  string
		from  *time.Time
		until *time.Time
	}{
		{name: "no_window"},
		{name: "open_start", until: timePtr(now.Add(time.Hour))},
		{name: "open_end", from: timePtr(now.Add(-time.Hour))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := activeCoupon()
			c.ValidFrom = tc.from
			c.ValidUntil = tc.until

			d, err := Validate(ValidationInput{Coupon: c, CourseID: 10, Amount: 10000, Now: now})
			require.NoError(t, err)
			assert.Equal(t, int64(2000), d.Amount)
		})
	}
}

func TestValidateOpenStartStillExpires(t *testing.T) {
	c := activeCoupon()
	c.ValidFrom = nil
	c.ValidUntil = timePtr(now.Add(-time.Minute))

	_, err := Validate(ValidationInput{Coupon: c, CourseID: 10, Amount: 10000, Now: now})
	assert.ErrorIs(t, err, ErrCouponExpired)
}
