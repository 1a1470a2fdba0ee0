package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	Update(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Coupon, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Coupon, error)
	List(ctx context.Context, db *gorm.DB) ([]*Coupon, error)
	// IncrementUsage bumps used_count only while the coupon is under its limit.
	IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// CountUserRedemptions counts the user's paid (completed or refunded) payments with the coupon.
	CountUserRedemptions(ctx context.Context, db *gorm.DB, couponID, userID snowflake.ID) (int64, error)
}
