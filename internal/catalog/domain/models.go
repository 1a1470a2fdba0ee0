package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Course is the subset of the catalog the payment flow reads.
type Course struct {
	ID              snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	Title           string       `gorm:"column:title" json:"title"`
	PriceMinor      int64        `gorm:"column:price_minor" json:"price"`
	Currency        string       `gorm:"column:currency" json:"currency"`
	IsFree          bool         `gorm:"column:is_free" json:"isFree"`
	EnrollmentCount int64        `gorm:"column:enrollment_count" json:"enrollmentCount"`
	CreatedAt       time.Time    `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt       time.Time    `gorm:"column:updated_at" json:"updatedAt"`
}

// FreeEquivalent reports whether enrolling costs nothing before any coupon.
func (c Course) FreeEquivalent() bool {
	return c.IsFree || c.PriceMinor <= 0
}
