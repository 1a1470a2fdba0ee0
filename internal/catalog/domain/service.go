package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the course catalog as seen by checkout.
type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Course, error)
	// GetByIDTx reads inside tx and bypasses the cache.
	GetByIDTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Course, error)
	IncrementEnrollmentCount(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}

var (
	ErrInvalidID = errors.New("invalid_course_id")
	ErrNotFound  = errors.New("course_not_found")
)
