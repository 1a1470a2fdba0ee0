package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// UnlimitedUsage marks a coupon without a global redemption cap.
const UnlimitedUsage = -1

// Coupon amounts are minor units of the course currency. DiscountValue is
// percent points for percentage coupons and major units for fixed ones.
// A nil ValidFrom or ValidUntil leaves that side of the window open.
type Coupon struct {
	ID                snowflake.ID    `gorm:"column:id;primaryKey" json:"id"`
	Code              string          `gorm:"column:code" json:"code"`
	Description       string          `gorm:"column:description" json:"description"`
	DiscountType      DiscountType    `gorm:"column:discount_type" json:"discountType"`
	DiscountValue     decimal.Decimal `gorm:"column:discount_value" json:"discountValue"`
	MinPurchaseAmount *int64          `gorm:"column:min_purchase_amount" json:"minPurchaseAmount,omitempty"`
	MaxDiscountAmount *int64          `gorm:"column:max_discount_amount" json:"maxDiscountAmount,omitempty"`
	CourseID          *snowflake.ID   `gorm:"column:course_id" json:"courseId,omitempty"`
	ValidFrom         *time.Time      `gorm:"column:valid_from" json:"validFrom,omitempty"`
	ValidUntil        *time.Time      `gorm:"column:valid_until" json:"validUntil,omitempty"`
	UsageLimit        int             `gorm:"column:usage_limit" json:"usageLimit"`
	UsedCount         int             `gorm:"column:used_count" json:"usedCount"`
	UsageLimitPerUser int             `gorm:"column:usage_limit_per_user" json:"usageLimitPerUser"`
	IsActive          bool            `gorm:"column:is_active" json:"isActive"`
	CreatedAt         time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

// NormalizeCode trims and upper-cases a user supplied coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount is the outcome of a successful validation.
type Discount struct {
	Coupon *Coupon
	Type   DiscountType
	Amount int64
}
