package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByUserCourse(ctx context.Context, db *gorm.DB, userID, courseID snowflake.ID) (*Enrollment, error)
	// Insert returns false when the (user, course) pair is already enrolled.
	Insert(ctx context.Context, db *gorm.DB, e *Enrollment) (bool, error)
	InsertProgress(ctx context.Context, db *gorm.DB, p *Progress) error
	FindProgress(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) (*Progress, error)
	UpdatePaymentStatusByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, status PaymentStatus, at time.Time) (int64, error)
}
