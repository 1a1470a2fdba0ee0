package service

import (
	"context"
	"strings"

	auditdomain "github.com/smallbiznis/learnpay/internal/audit/domain"
	"github.com/smallbiznis/learnpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxRefundReasonLength = 500

// Refund reverses a completed charge. The enrollment is kept and only its
// payment status changes; coupon usage and enrollment counts stay as they are.
func (s *Service) Refund(ctx context.Context, cmd paymentdomain.RefundCommand) (*paymentdomain.Payment, error) {
	if cmd.PaymentID == 0 {
		return nil, paymentdomain.ErrInvalidID
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" || len(reason) > maxRefundReasonLength {
		return nil, paymentdomain.ErrInvalidRefundReason
	}

	payment, err := s.reload(ctx, cmd.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != paymentdomain.StatusCompleted {
		return nil, paymentdomain.NewStateError("refund", payment.Status)
	}

	if payment.Method != paymentdomain.MethodFree {
		kind, ok := adapters.KindForMethod(payment.Method)
		if !ok {
			return nil, paymentdomain.ErrInvalidMethod
		}
		gateway, ok := s.registry.ForKind(kind)
		if !ok {
			return nil, paymentdomain.ErrMethodUnavailable
		}
		err := gateway.Refund(ctx, paymentdomain.RefundRequest{
			Reference:      deref(payment.GatewayIntentID),
			TransactionRef: deref(payment.GatewayTransactionID),
			Amount:         payment.FinalAmount,
			Currency:       payment.Currency,
			Reason:         reason,
			TransactionID:  payment.TransactionID,
		})
		if err != nil {
			s.log.Warn("gateway refund failed",
				zap.String("transaction_id", payment.TransactionID),
				zap.String("gateway", kind),
				zap.Error(err),
			)
			return nil, paymentdomain.NewGatewayError(kind, "refund", err)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Transition(ctx, tx, paymentdomain.Transition{
			ID:           payment.ID,
			From:         []paymentdomain.Status{paymentdomain.StatusCompleted},
			To:           paymentdomain.StatusRefunded,
			At:           s.clock.Now(),
			RefundReason: &reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return paymentdomain.NewStateError("refund", paymentdomain.StatusRefunded)
		}
		return s.enrollments.MarkRefunded(ctx, tx, payment.ID)
	})
	if err != nil {
		return nil, err
	}

	s.recordRefundAudit(ctx, payment, reason)
	s.obsMetrics.RecordRefunded(ctx, string(payment.Method))

	return s.reload(ctx, payment.ID)
}

func (s *Service) recordRefundAudit(ctx context.Context, payment *paymentdomain.Payment, reason string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionPaymentRefund,
		TargetType: auditdomain.TargetPayment,
		TargetID:   payment.ID.String(),
		Metadata: map[string]any{
			"transaction_id":    payment.TransactionID,
			"reason":            reason,
			"amount":            payment.FinalAmount,
			"currency":          payment.Currency,
			"payment_method":    string(payment.Method),
			"gateway_reference": deref(payment.GatewayIntentID),
		},
	})
}
