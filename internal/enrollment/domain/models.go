package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

const ProgressNotStarted = "not_started"

// Enrollment grants a user access to a course. At most one per (user, course).
type Enrollment struct {
	ID            snowflake.ID  `gorm:"column:id;primaryKey" json:"id"`
	UserID        snowflake.ID  `gorm:"column:user_id" json:"userId"`
	CourseID      snowflake.ID  `gorm:"column:course_id" json:"courseId"`
	PaymentID     snowflake.ID  `gorm:"column:payment_id" json:"paymentId"`
	PricePaid     int64         `gorm:"column:price_paid" json:"pricePaid"`
	Currency      string        `gorm:"column:currency" json:"currency"`
	PaymentStatus PaymentStatus `gorm:"column:payment_status" json:"paymentStatus"`
	CouponCode    *string       `gorm:"column:coupon_code" json:"couponCode,omitempty"`
	EnrolledAt    time.Time     `gorm:"column:enrolled_at" json:"enrolledAt"`
	UpdatedAt     time.Time     `gorm:"column:updated_at" json:"updatedAt"`
}

type Progress struct {
	ID                   snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	EnrollmentID         snowflake.ID `gorm:"column:enrollment_id" json:"enrollmentId"`
	UserID               snowflake.ID `gorm:"column:user_id" json:"userId"`
	CourseID             snowflake.ID `gorm:"column:course_id" json:"courseId"`
	Status               string       `gorm:"column:status" json:"status"`
	CompletionPercentage int          `gorm:"column:completion_percentage" json:"completionPercentage"`
	CreatedAt            time.Time    `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt            time.Time    `gorm:"column:updated_at" json:"updatedAt"`
}
