package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/learnpay/internal/catalog/domain"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/coupon/domain"
	"github.com/smallbiznis/learnpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeLength = 32

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog catalogdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	catalog catalogdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("coupon.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCouponRequest) (domain.Coupon, error) {
	now := s.clock.Now()
	coupon := domain.Coupon{
		ID:                s.genID.Generate(),
		Code:              domain.NormalizeCode(req.Code),
		Description:       strings.TrimSpace(req.Description),
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		CourseID:          req.CourseID,
		ValidFrom:         utcPtr(req.ValidFrom),
		ValidUntil:        utcPtr(req.ValidUntil),
		UsageLimit:        domain.UnlimitedUsage,
		UsageLimitPerUser: 1,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.UsageLimit != nil {
		coupon.UsageLimit = *req.UsageLimit
	}
	if req.UsageLimitPerUser != nil {
		coupon.UsageLimitPerUser = *req.UsageLimitPerUser
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}

	if err := validateCoupon(&coupon); err != nil {
		return domain.Coupon{}, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByCode(ctx, tx, coupon.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateCode
		}
		return s.repo.Insert(ctx, tx, &coupon)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Coupon{}, domain.ErrDuplicateCode
		}
		return domain.Coupon{}, err
	}

	s.log.Info("coupon created", zap.String("code", coupon.Code), zap.Int64("coupon_id", coupon.ID.Int64()))
	return coupon, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateCouponRequest) (domain.Coupon, error) {
	if id == 0 {
		return domain.Coupon{}, domain.ErrInvalidID
	}

	var updated domain.Coupon
	err := s.db.Transaction(func(tx *gorm.DB) error {
		coupon, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if coupon == nil {
			return domain.ErrNotFound
		}

		codeChanged := applyPatch(coupon, req)
		if err := validateCoupon(coupon); err != nil {
			return err
		}
		if codeChanged {
			other, err := s.repo.FindByCode(ctx, tx, coupon.Code)
			if err != nil {
				return err
			}
			if other != nil && other.ID != coupon.ID {
				return domain.ErrDuplicateCode
			}
		}

		coupon.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, coupon); err != nil {
			return err
		}
		updated = *coupon
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Coupon{}, domain.ErrDuplicateCode
		}
		return domain.Coupon{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	ok, err := s.repo.Delete(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Coupon, error) {
	if id == 0 {
		return domain.Coupon{}, domain.ErrInvalidID
	}
	coupon, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Coupon{}, err
	}
	if coupon == nil {
		return domain.Coupon{}, domain.ErrNotFound
	}
	return *coupon, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Coupon, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Coupon, 0, len(items))
	for _, c := range items {
		out = append(out, *c)
	}
	return out, nil
}

// Check never fails on a bad coupon; rejections come back as Valid=false.
func (s *Service) Check(ctx context.Context, req domain.CheckRequest) (domain.CheckResult, error) {
	course, err := s.catalog.GetByID(ctx, req.CourseID)
	if err != nil {
		return domain.CheckResult{}, err
	}

	discount, err := s.Evaluate(ctx, domain.EvaluateRequest{
		Code:     req.Code,
		CourseID: course.ID,
		UserID:   req.UserID,
		Amount:   course.PriceMinor,
	})
	if err != nil {
		if ce, ok := domain.AsCouponError(err); ok {
			return domain.CheckResult{Valid: false, Message: ce.Message}, nil
		}
		return domain.CheckResult{}, err
	}

	return domain.CheckResult{
		Valid:        true,
		Discount:     discount.Amount,
		DiscountType: discount.Type,
		Message:      "coupon applied",
	}, nil
}

func (s *Service) Evaluate(ctx context.Context, req domain.EvaluateRequest) (domain.Discount, error) {
	code := domain.NormalizeCode(req.Code)
	if code == "" {
		return domain.Discount{}, domain.ErrInvalidCoupon
	}

	coupon, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Discount{}, err
	}
	if coupon == nil {
		return domain.Discount{}, domain.ErrInvalidCoupon
	}

	usage, err := s.repo.CountUserRedemptions(ctx, s.db, coupon.ID, req.UserID)
	if err != nil {
		return domain.Discount{}, err
	}

	return domain.Validate(domain.ValidationInput{
		Coupon:    coupon,
		CourseID:  req.CourseID,
		Amount:    req.Amount,
		Now:       s.clock.Now(),
		UserUsage: usage,
	})
}

func (s *Service) RecordRedemption(ctx context.Context, tx *gorm.DB, couponID snowflake.ID) error {
	ok, err := s.repo.IncrementUsage(ctx, tx, couponID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCouponLimitReached
	}
	return nil
}

func applyPatch(c *domain.Coupon, req domain.UpdateCouponRequest) bool {
	codeChanged := false
	if req.Code != nil {
		code := domain.NormalizeCode(*req.Code)
		codeChanged = code != c.Code
		c.Code = code
	}
	if req.Description != nil {
		c.Description = strings.TrimSpace(*req.Description)
	}
	if req.DiscountType != nil {
		c.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		c.DiscountValue = *req.DiscountValue
	}
	if req.MinPurchaseAmount != nil {
		c.MinPurchaseAmount = req.MinPurchaseAmount
	}
	if req.MaxDiscountAmount != nil {
		c.MaxDiscountAmount = req.MaxDiscountAmount
	}
	if req.CourseID != nil {
		c.CourseID = req.CourseID
	}
	if req.ValidFrom != nil {
		c.ValidFrom = utcPtr(req.ValidFrom)
	}
	if req.ValidUntil != nil {
		c.ValidUntil = utcPtr(req.ValidUntil)
	}
	if req.UsageLimit != nil {
		c.UsageLimit = *req.UsageLimit
	}
	if req.UsageLimitPerUser != nil {
		c.UsageLimitPerUser = *req.UsageLimitPerUser
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	return codeChanged
}

func validateCoupon(c *domain.Coupon) error {
	if c.Code == "" || len(c.Code) > maxCodeLength {
		return domain.ErrInvalidCode
	}
	switch c.DiscountType {
	case domain.DiscountTypePercentage:
		if !c.DiscountValue.IsPositive() || c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return domain.ErrInvalidDiscountValue
		}
	case domain.DiscountTypeFixed:
		if !c.DiscountValue.IsPositive() {
			return domain.ErrInvalidDiscountValue
		}
	default:
		return domain.ErrInvalidDiscountType
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && !c.ValidUntil.After(*c.ValidFrom) {
		return domain.ErrInvalidValidity
	}
	if c.UsageLimit < domain.UnlimitedUsage || c.UsageLimit == 0 {
		return domain.ErrInvalidUsageLimit
	}
	if c.UsageLimitPerUser < 1 {
		return domain.ErrInvalidUsageLimit
	}
	if (c.MinPurchaseAmount != nil && *c.MinPurchaseAmount < 0) ||
		(c.MaxDiscountAmount != nil && *c.MaxDiscountAmount < 0) {
		return domain.ErrInvalidAmountBound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
