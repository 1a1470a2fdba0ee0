package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalid       ErrorKind = "coupon_invalid"
	KindExpired       ErrorKind = "coupon_expired"
	KindLimitReached  ErrorKind = "coupon_limit_reached"
	KindNotApplicable ErrorKind = "coupon_not_applicable"
	KindMinimumNotMet ErrorKind = "coupon_minimum_not_met"
)

// CouponError is a rejection the customer can act on. Errors of the same
// Kind match each other under errors.Is.
type CouponError struct {
	Kind    ErrorKind
	Message string
}

func (e *CouponError) Error() string {
	return e.Message
}

func (e *CouponError) Is(target error) bool {
	t, ok := target.(*CouponError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCoupon         = &CouponError{Kind: KindInvalid, Message: "invalid coupon code"}
	ErrCouponExpired         = &CouponError{Kind: KindExpired, Message: "coupon has expired"}
	ErrCouponNotYetValid     = &CouponError{Kind: KindExpired, Message: "coupon is not yet valid"}
	ErrCouponLimitReached    = &CouponError{Kind: KindLimitReached, Message: "coupon usage limit reached"}
	ErrCouponAlreadyUsed     = &CouponError{Kind: KindLimitReached, Message: "you have already used this coupon"}
	ErrCouponNotApplicable   = &CouponError{Kind: KindNotApplicable, Message: "coupon is not valid for this course"}
	ErrMinimumPurchaseNotMet = &CouponError{Kind: KindMinimumNotMet, Message: "minimum purchase amount not met"}
)

func minimumNotMet(minimum int64) error {
	return &CouponError{
		Kind:    KindMinimumNotMet,
		Message: fmt.Sprintf("minimum purchase amount of %d.%02d required", minimum/100, minimum%100),
	}
}

// AsCouponError extracts the rejection kind, if any.
func AsCouponError(err error) (*CouponError, bool) {
	var ce *CouponError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

var (
	ErrNotFound             = errors.New("coupon_not_found")
	ErrInvalidID            = errors.New("invalid_coupon_id")
	ErrInvalidCode          = errors.New("invalid_coupon_code")
	ErrDuplicateCode        = errors.New("coupon_code_exists")
	ErrInvalidDiscountType  = errors.New("invalid_discount_type")
	ErrInvalidDiscountValue = errors.New("invalid_discount_value")
	ErrInvalidValidity      = errors.New("invalid_validity_window")
	ErrInvalidUsageLimit    = errors.New("invalid_usage_limit")
	ErrInvalidAmountBound   = errors.New("invalid_amount_bound")
)
