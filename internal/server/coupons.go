package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/learnpay/internal/audit/domain"
	coupondomain "github.com/smallbiznis/learnpay/internal/coupon/domain"
	"github.com/smallbiznis/learnpay/internal/observability/logger"
	"go.uber.org/zap"
)

type createCouponRequest struct {
	Code              string           `json:"code" validate:"required,coupon_code"`
	Description       string           `json:"description" validate:"max=500"`
	DiscountType      string           `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue     *decimal.Decimal `json:"discountValue" validate:"required"`
	MinPurchaseAmount *int64           `json:"minPurchaseAmount" validate:"omitempty,gte=0"`
	MaxDiscountAmount *int64           `json:"maxDiscountAmount" validate:"omitempty,gte=0"`
	CourseID          *string          `json:"courseId"`
	ValidFrom         *time.Time       `json:"validFrom"`
	ValidUntil        *time.Time       `json:"validUntil"`
	UsageLimit        *int             `json:"usageLimit" validate:"omitempty,gte=-1"`
	UsageLimitPerUser *int             `json:"usageLimitPerUser" validate:"omitempty,gte=1"`
	IsActive          *bool            `json:"isActive"`
}

type updateCouponRequest struct {
	Code              *string          `json:"code" validate:"omitempty,coupon_code"`
	Description       *string          `json:"description" validate:"omitempty,max=500"`
	DiscountType      *string          `json:"discountType" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue     *decimal.Decimal `json:"discountValue"`
	MinPurchaseAmount *int64           `json:"minPurchaseAmount" validate:"omitempty,gte=0"`
	MaxDiscountAmount *int64           `json:"maxDiscountAmount" validate:"omitempty,gte=0"`
	CourseID          *string          `json:"courseId"`
	ValidFrom         *time.Time       `json:"validFrom"`
	ValidUntil        *time.Time       `json:"validUntil"`
	UsageLimit        *int             `json:"usageLimit" validate:"omitempty,gte=-1"`
	UsageLimitPerUser *int             `json:"usageLimitPerUser" validate:"omitempty,gte=1"`
	IsActive          *bool            `json:"isActive"`
}

func (s *Server) CreateCoupon(c *gin.Context) {
	var req createCouponRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	courseID, err := parseOptionalSnowflakeID(req.CourseID)
	if err != nil {
		AbortWithError(c, newValidationError("courseId", "invalid_course_id", "invalid course id"))
		return
	}

	coupon, err := s.couponSvc.Create(c.Request.Context(), coupondomain.CreateCouponRequest{
		Code:              req.Code,
		Description:       strings.TrimSpace(req.Description),
		DiscountType:      coupondomain.DiscountType(req.DiscountType),
		DiscountValue:     *req.DiscountValue,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		CourseID:          courseID,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		IsActive:          req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordCouponAudit(c, auditdomain.ActionCouponCreate, coupon, map[string]any{
		"code":           coupon.Code,
		"discount_type":  string(coupon.DiscountType),
		"discount_value": coupon.DiscountValue.String(),
	})
	c.JSON(http.StatusCreated, gin.H{"data": coupon})
}

func (s *Server) ListCoupons(c *gin.Context) {
	items, err := s.couponSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetCoupon(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	coupon, err := s.couponSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": coupon})
}

func (s *Server) UpdateCoupon(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req updateCouponRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	courseID, err := parseOptionalSnowflakeID(req.CourseID)
	if err != nil {
		AbortWithError(c, newValidationError("courseId", "invalid_course_id", "invalid course id"))
		return
	}

	var discountType *coupondomain.DiscountType
	if req.DiscountType != nil {
		value := coupondomain.DiscountType(*req.DiscountType)
		discountType = &value
	}

	coupon, err := s.couponSvc.Update(c.Request.Context(), id, coupondomain.UpdateCouponRequest{
		Code:              req.Code,
		Description:       req.Description,
		DiscountType:      discountType,
		DiscountValue:     req.DiscountValue,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		CourseID:          courseID,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		IsActive:          req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordCouponAudit(c, auditdomain.ActionCouponUpdate, coupon, map[string]any{
		"code":      coupon.Code,
		"is_active": coupon.IsActive,
	})
	c.JSON(http.StatusOK, gin.H{"data": coupon})
}

func (s *Server) DeleteCoupon(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	ctx := c.Request.Context()
	coupon, err := s.couponSvc.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.couponSvc.Delete(ctx, id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordCouponAudit(c, auditdomain.ActionCouponDelete, coupon, map[string]any{
		"code": coupon.Code,
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) recordCouponAudit(c *gin.Context, action string, coupon coupondomain.Coupon, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	ctx := c.Request.Context()
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: auditdomain.TargetCoupon,
		TargetID:   coupon.ID.String(),
		Metadata:   metadata,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("failed to record coupon audit", zap.String("action", action), zap.Error(err))
	}
}
