package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateCouponRequest struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinPurchaseAmount *int64
	MaxDiscountAmount *int64
	CourseID          *snowflake.ID
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	UsageLimit        *int
	UsageLimitPerUser *int
	IsActive          *bool
}

// UpdateCouponRequest patches only the non-nil fields.
type UpdateCouponRequest struct {
	Code              *string
	Description       *string
	DiscountType      *DiscountType
	DiscountValue     *decimal.Decimal
	MinPurchaseAmount *int64
	MaxDiscountAmount *int64
	CourseID          *snowflake.ID
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	UsageLimit        *int
	UsageLimitPerUser *int
	IsActive          *bool
}

type EvaluateRequest struct {
	Code     string
	CourseID snowflake.ID
	UserID   snowflake.ID
	Amount   int64
}

type CheckRequest struct {
	Code     string
	CourseID snowflake.ID
	UserID   snowflake.ID
}

// CheckResult is the live preview shown while the user types a code.
type CheckResult struct {
	Valid        bool         `json:"valid"`
	Discount     int64        `json:"discount,omitempty"`
	DiscountType DiscountType `json:"discountType,omitempty"`
	Message      string       `json:"message,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateCouponRequest) (Coupon, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateCouponRequest) (Coupon, error)
	Delete(ctx context.Context, id snowflake.ID) error
	GetByID(ctx context.Context, id snowflake.ID) (Coupon, error)
	List(ctx context.Context) ([]Coupon, error)

	Check(ctx context.Context, req CheckRequest) (CheckResult, error)
	// Evaluate validates a code against an amount without side effects.
	Evaluate(ctx context.Context, req EvaluateRequest) (Discount, error)
	// RecordRedemption increments used_count inside the completing transaction.
	RecordRedemption(ctx context.Context, tx *gorm.DB, couponID snowflake.ID) error
}
