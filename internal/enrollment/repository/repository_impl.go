package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/enrollment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserCourse(ctx context.Context, db *gorm.DB, userID, courseID snowflake.ID) (*domain.Enrollment, error) {
	var item domain.Enrollment
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, course_id, payment_id, price_paid, currency, payment_status,
			coupon_code, enrolled_at, updated_at
		 FROM enrollments
		 WHERE user_id = ? AND course_id = ?
		 LIMIT 1`,
		userID,
		courseID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *domain.Enrollment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO enrollments (
			id, user_id, course_id, payment_id, price_paid, currency, payment_status,
			coupon_code, enrolled_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, course_id) DO NOTHING`,
		e.ID,
		e.UserID,
		e.CourseID,
		e.PaymentID,
		e.PricePaid,
		e.Currency,
		e.PaymentStatus,
		e.CouponCode,
		e.EnrolledAt,
		e.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertProgress(ctx context.Context, db *gorm.DB, p *domain.Progress) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO progress (
			id, enrollment_id, user_id, course_id, status, completion_percentage, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.EnrollmentID,
		p.UserID,
		p.CourseID,
		p.Status,
		p.CompletionPercentage,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindProgress(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) (*domain.Progress, error) {
	var item domain.Progress
	err := db.WithContext(ctx).Raw(
		`SELECT id, enrollment_id, user_id, course_id, status, completion_percentage, created_at, updated_at
		 FROM progress
		 WHERE enrollment_id = ?
		 LIMIT 1`,
		enrollmentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdatePaymentStatusByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, status domain.PaymentStatus, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE enrollments
		 SET payment_status = ?, updated_at = ?
		 WHERE payment_id = ?`,
		status,
		at,
		paymentID,
	)
	return res.RowsAffected, res.Error
}
