package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ProvisionRequest carries what enrollment needs from a completed payment.
type ProvisionRequest struct {
	PaymentID  snowflake.ID
	UserID     snowflake.ID
	CourseID   snowflake.ID
	PricePaid  int64
	Currency   string
	CouponCode *string
}

type ProvisionResult struct {
	Enrollment *Enrollment
	// Created is false when an earlier payment already enrolled the user.
	Created bool
}

type Service interface {
	IsEnrolled(ctx context.Context, userID, courseID snowflake.ID) (bool, error)
	Get(ctx context.Context, userID, courseID snowflake.ID) (*Enrollment, error)
	GetProgress(ctx context.Context, enrollmentID snowflake.ID) (*Progress, error)
	// Provision must run inside the transaction that completes the payment.
	Provision(ctx context.Context, tx *gorm.DB, req ProvisionRequest) (ProvisionResult, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) error
}

var (
	ErrNotFound       = errors.New("enrollment_not_found")
	ErrInvalidRequest = errors.New("invalid_enrollment_request")
)
