package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/learnpay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/pkg/db/pagination"
)

type refundPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (s *Server) ListAllPayments(c *gin.Context) {
	var query pagination.Offset
	if err := s.bindQuery(c, &query); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.ListAll(c.Request.Context(), query.Normalize())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	for i := range resp.Payments {
		resp.Payments[i].GatewayClientSecret = nil
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RefundPayment(c *gin.Context) {
	paymentID, ok := parseSnowflakeID(c.Param("paymentId"))
	if !ok {
		AbortWithError(c, newValidationError("paymentId", "invalid_id", "invalid payment id"))
		return
	}

	var req refundPaymentRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundCommand{
		PaymentID: paymentID,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.TransactionIDKey, payment.TransactionID)
	c.JSON(http.StatusOK, gin.H{"data": payment})
}
