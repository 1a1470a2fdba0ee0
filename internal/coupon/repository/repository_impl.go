package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/coupon/domain"
	"gorm.io/gorm"
)

const couponColumns = `id, code, description, discount_type, discount_value, min_purchase_amount,
	max_discount_amount, course_id, valid_from, valid_until, usage_limit, used_count,
	usage_limit_per_user, is_active, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Coupon) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO coupons (`+couponColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Code,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.MinPurchaseAmount,
		c.MaxDiscountAmount,
		c.CourseID,
		c.ValidFrom,
		c.ValidUntil,
		c.UsageLimit,
		c.UsedCount,
		c.UsageLimitPerUser,
		c.IsActive,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

// Update rewrites the editable columns; used_count is owned by IncrementUsage.
func (r *repo) Update(ctx context.Context, db *gorm.DB, c *domain.Coupon) error {
	return db.WithContext(ctx).Exec(
		`UPDATE coupons SET code = ?, description = ?, discount_type = ?, discount_value = ?,
		 min_purchase_amount = ?, max_discount_amount = ?, course_id = ?, valid_from = ?,
		 valid_until = ?, usage_limit = ?, usage_limit_per_user = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		c.Code,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.MinPurchaseAmount,
		c.MaxDiscountAmount,
		c.CourseID,
		c.ValidFrom,
		c.ValidUntil,
		c.UsageLimit,
		c.UsageLimitPerUser,
		c.IsActive,
		c.UpdatedAt,
		c.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM coupons WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Coupon, error) {
	return r.findOne(ctx, db, `SELECT `+couponColumns+` FROM coupons WHERE id = ?`, id)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Coupon, error) {
	return r.findOne(ctx, db, `SELECT `+couponColumns+` FROM coupons WHERE code = ?`, code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Coupon, error) {
	var coupons []*domain.Coupon
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&coupons).Error; err != nil {
		return nil, err
	}
	if len(coupons) == 0 {
		return nil, nil
	}
	return coupons[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Coupon, error) {
	var coupons []*domain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, id DESC`,
	).Scan(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repo) IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE coupons SET used_count = used_count + 1
		 WHERE id = ? AND (usage_limit = -1 OR used_count < usage_limit)`,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountUserRedemptions(ctx context.Context, db *gorm.DB, couponID, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments
		 WHERE coupon_id = ? AND user_id = ? AND status IN ('completed', 'refunded')`,
		couponID,
		userID,
	).Scan(&count).Error
	return count, err
}
