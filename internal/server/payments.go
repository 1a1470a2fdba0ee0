package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/learnpay/internal/authorization"
	coupondomain "github.com/smallbiznis/learnpay/internal/coupon/domain"
	obslogger "github.com/smallbiznis/learnpay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/pkg/db/pagination"
	"go.uber.org/zap"
)

type initiatePaymentRequest struct {
	CourseID      string `json:"courseId" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=stripe bkash visa_bd"`
	CouponCode    string `json:"couponCode" validate:"omitempty,max=50"`
	Currency      string `json:"currency" validate:"omitempty,oneof=USD BDT usd bdt"`
}

type confirmPaymentRequest struct {
	TransactionID    string `json:"transactionId" validate:"required,max=64"`
	GatewayReference string `json:"gatewayReference" validate:"omitempty,max=255"`
}

type checkCouponRequest struct {
	CouponCode string `json:"couponCode" validate:"required,max=50"`
	CourseID   string `json:"courseId" validate:"required"`
}

type listMyPaymentsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size" validate:"omitempty,gte=1,lte=100"`
}

func (s *Server) InitiatePayment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req initiatePaymentRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	courseID, ok := parseSnowflakeID(req.CourseID)
	if !ok {
		AbortWithError(c, newValidationError("courseId", "invalid_course_id", "invalid course id"))
		return
	}

	payment, err := s.paymentSvc.Initiate(c.Request.Context(), paymentdomain.InitiateRequest{
		UserID:     userID,
		CourseID:   courseID,
		Method:     req.PaymentMethod,
		CouponCode: req.CouponCode,
		Currency:   req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.TransactionIDKey, payment.TransactionID)
	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req confirmPaymentRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.TransactionIDKey, strings.TrimSpace(req.TransactionID))
	payment, err := s.paymentSvc.Confirm(c.Request.Context(), paymentdomain.ConfirmRequest{
		GatewayKind:      c.Param("gatewayKind"),
		TransactionID:    req.TransactionID,
		GatewayReference: req.GatewayReference,
		UserID:           userID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) CheckCoupon(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkCouponRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	courseID, ok := parseSnowflakeID(req.CourseID)
	if !ok {
		AbortWithError(c, newValidationError("courseId", "invalid_course_id", "invalid course id"))
		return
	}

	result, err := s.couponSvc.Check(c.Request.Context(), coupondomain.CheckRequest{
		Code:     req.CouponCode,
		CourseID: courseID,
		UserID:   userID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListMyPayments(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listMyPaymentsQuery
	if err := s.bindQuery(c, &query); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.ListForUser(c.Request.Context(), userID, pagination.Pagination{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo})
}

func (s *Server) GetPaymentByTransaction(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	admin, err := s.authzSvc.Allowed(ctx, userID, authorization.ObjectPayment, authorization.ActionPaymentViewAll)
	if err != nil {
		obslogger.FromContext(ctx).Warn("admin check failed, scoping to caller", zap.Error(err))
		admin = false
	}

	transactionID := strings.TrimSpace(c.Param("transactionId"))
	c.Set(obslogger.TransactionIDKey, transactionID)
	payment, err := s.paymentSvc.GetByTransactionID(ctx, paymentdomain.Viewer{UserID: userID, Admin: admin}, transactionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}
