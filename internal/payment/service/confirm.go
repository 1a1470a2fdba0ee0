package service

import (
	"context"
	"errors"
	"strings"

	coupondomain "github.com/smallbiznis/learnpay/internal/coupon/domain"
	enrollmentdomain "github.com/smallbiznis/learnpay/internal/enrollment/domain"
	invoicedomain "github.com/smallbiznis/learnpay/internal/invoice/domain"
	"github.com/smallbiznis/learnpay/internal/invoice/format"
	"github.com/smallbiznis/learnpay/internal/notification"
	"github.com/smallbiznis/learnpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeCompleted  = "completed"
	outcomeFailed     = "failed"
	outcomeProcessing = "processing"
	outcomePending    = "pending"
	outcomeNoop       = "noop"
)

// Reconciliation reasons: the gateway captured money that did not settle a
// payment the usual way.
const (
	reconcileLateCapture   = "late_capture"
	reconcileDuplicate     = "duplicate_charge"
	reconcileClosedPayment = "closed_payment_capture"
)

// settlement is what a completing transaction produced.
type settlement struct {
	enrolled bool
	invoice  *invoicedomain.Invoice
}

func (s *Service) Confirm(ctx context.Context, req paymentdomain.ConfirmRequest) (*paymentdomain.Payment, error) {
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return nil, paymentdomain.ErrInvalidTransaction
	}

	payment, err := s.repo.FindByTransactionID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil || (req.UserID != 0 && payment.UserID != req.UserID) {
		return nil, paymentdomain.ErrNotFound
	}

	return s.confirm(ctx, payment, req.GatewayKind, req.GatewayReference)
}

func (s *Service) confirm(ctx context.Context, payment *paymentdomain.Payment, gatewayKind, reference string) (*paymentdomain.Payment, error) {
	if payment.Status == paymentdomain.StatusCompleted {
		s.obsMetrics.RecordConfirmed(ctx, string(payment.Method), outcomeNoop)
		return payment, nil
	}
	if !payment.Status.Open() && !payment.Status.Abandoned() {
		return nil, paymentdomain.NewStateError("confirm", payment.Status)
	}

	kind := strings.ToLower(strings.TrimSpace(gatewayKind))
	expected, ok := adapters.KindForMethod(payment.Method)
	if !ok || expected != kind {
		return nil, paymentdomain.ErrGatewayMismatch
	}
	gateway, ok := s.registry.ForKind(kind)
	if !ok {
		return nil, paymentdomain.ErrMethodUnavailable
	}

	reference = strings.TrimSpace(reference)
	intentID := deref(payment.GatewayIntentID)
	switch kind {
	case adapters.KindStripe:
		if reference != "" && intentID != "" && reference != intentID {
			return nil, paymentdomain.ErrReferenceMismatch
		}
	case adapters.KindBkash:
		if reference == "" {
			return nil, paymentdomain.ErrReferenceRequired
		}
	}

	result, err := gateway.ChargeStatus(ctx, paymentdomain.StatusQuery{
		Reference:       intentID,
		ClientReference: reference,
	})
	if err != nil {
		s.log.Warn("gateway status lookup failed",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("gateway", kind),
			zap.Error(err),
		)
		return nil, err
	}

	return s.applyChargeResult(ctx, payment, result)
}

func (s *Service) applyChargeResult(ctx context.Context, payment *paymentdomain.Payment, result paymentdomain.ChargeResult) (*paymentdomain.Payment, error) {
	// Only a capture reopens an abandoned attempt.
	if payment.Status.Abandoned() && result.Status != paymentdomain.ChargeSucceeded {
		return nil, paymentdomain.NewStateError("confirm", payment.Status)
	}

	switch result.Status {
	case paymentdomain.ChargeSucceeded:
		return s.complete(ctx, payment, result)

	case paymentdomain.ChargeFailed:
		reason := strings.TrimSpace(result.Reason)
		if reason == "" {
			reason = "payment failed"
		}
		updated, err := s.transitionOpen(ctx, payment, paymentdomain.Transition{
			From:          []paymentdomain.Status{paymentdomain.StatusPending, paymentdomain.StatusProcessing},
			To:            paymentdomain.StatusFailed,
			FailureReason: &reason,
			Details:       statusDetails(payment.Details, result),
		})
		if err == nil {
			s.obsMetrics.RecordConfirmed(ctx, string(payment.Method), outcomeFailed)
		}
		return updated, err

	case paymentdomain.ChargeProcessing:
		if payment.Status == paymentdomain.StatusProcessing {
			return payment, nil
		}
		updated, err := s.transitionOpen(ctx, payment, paymentdomain.Transition{
			From:    []paymentdomain.Status{paymentdomain.StatusPending},
			To:      paymentdomain.StatusProcessing,
			Details: statusDetails(payment.Details, result),
		})
		if err == nil {
			s.obsMetrics.RecordConfirmed(ctx, string(payment.Method), outcomeProcessing)
		}
		return updated, err

	default:
		s.obsMetrics.RecordConfirmed(ctx, string(payment.Method), outcomePending)
		return payment, nil
	}
}

// transitionOpen applies t to payment; a lost race returns the stored row.
func (s *Service) transitionOpen(ctx context.Context, payment *paymentdomain.Payment, t paymentdomain.Transition) (*paymentdomain.Payment, error) {
	t.ID = payment.ID
	t.At = s.clock.Now()
	if _, err := s.repo.Transition(ctx, s.db, t); err != nil {
		return nil, err
	}
	return s.reload(ctx, payment.ID)
}

func (s *Service) complete(ctx context.Context, payment *paymentdomain.Payment, result paymentdomain.ChargeResult) (*paymentdomain.Payment, error) {
	var (
		completed *paymentdomain.Payment
		settled   settlement
		won       bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Transition(ctx, tx, paymentdomain.Transition{
			ID: payment.ID,
			From: []paymentdomain.Status{
				paymentdomain.StatusPending,
				paymentdomain.StatusProcessing,
				paymentdomain.StatusFailed,
				paymentdomain.StatusCancelled,
			},
			To:                   paymentdomain.StatusCompleted,
			At:                   s.clock.Now(),
			GatewayTransactionID: stringPtr(result.TransactionRef),
			Details:              statusDetails(payment.Details, result),
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true

		completed, err = s.repo.FindByID(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if completed == nil {
			return paymentdomain.ErrNotFound
		}

		settled, err = s.settle(ctx, tx, completed, false)
		return err
	})
	if err != nil {
		s.log.Error("failed to settle confirmed payment",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	if !won {
		current, err := s.reload(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != paymentdomain.StatusCompleted {
			s.reportCapturedCharge(ctx, current, reconcileClosedPayment)
			return nil, paymentdomain.NewStateError("confirm", current.Status)
		}
		s.obsMetrics.RecordConfirmed(ctx, string(current.Method), outcomeNoop)
		return current, nil
	}

	if payment.Status.Abandoned() {
		s.log.Warn("completed an abandoned payment after a late capture",
			zap.String("transaction_id", completed.TransactionID),
			zap.String("previous_status", string(payment.Status)),
			zap.String("failure_reason", deref(payment.FailureReason)),
		)
		s.obsMetrics.RecordReconciliation(ctx, string(completed.Method), reconcileLateCapture)
	}
	if !settled.enrolled {
		s.reportCapturedCharge(ctx, completed, reconcileDuplicate)
	}
	s.obsMetrics.RecordConfirmed(ctx, string(completed.Method), outcomeCompleted)
	s.afterSettle(ctx, completed, settled)
	return completed, nil
}

// reportCapturedCharge raises a captured charge that produced no enrollment.
// The money is held by the gateway, so an operator has to refund or settle it.
func (s *Service) reportCapturedCharge(ctx context.Context, payment *paymentdomain.Payment, reason string) {
	s.log.Error("captured charge needs reconciliation",
		zap.String("reason", reason),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("status", string(payment.Status)),
		zap.String("user_id", payment.UserID.String()),
		zap.String("course_id", payment.CourseID.String()),
		zap.String("gateway_reference", deref(payment.GatewayIntentID)),
	)
	s.obsMetrics.RecordReconciliation(ctx, string(payment.Method), reason)
}

// settle provisions the enrollment, counts the coupon redemption and cuts the
// invoice inside tx. strictCoupon fails the settlement when the coupon ran out
// of redemptions; a charged payment only logs it.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, strictCoupon bool) (settlement, error) {
	provisioned, err := s.enrollments.Provision(ctx, tx, enrollmentdomain.ProvisionRequest{
		PaymentID:  payment.ID,
		UserID:     payment.UserID,
		CourseID:   payment.CourseID,
		PricePaid:  payment.FinalAmount,
		Currency:   payment.Currency,
		CouponCode: payment.CouponCode,
	})
	if err != nil {
		return settlement{}, err
	}

	if payment.CouponID != nil {
		err := s.coupons.RecordRedemption(ctx, tx, *payment.CouponID)
		switch {
		case err == nil:
		case errors.Is(err, coupondomain.ErrCouponLimitReached) && !strictCoupon:
			s.log.Warn("coupon limit reached after charge",
				zap.String("transaction_id", payment.TransactionID),
				zap.String("coupon_code", deref(payment.CouponCode)),
			)
		default:
			return settlement{}, err
		}
	}

	invoice, err := s.invoices.Generate(ctx, tx, invoicedomain.GenerateRequest{
		PaymentID:     payment.ID,
		UserID:        payment.UserID,
		CourseID:      payment.CourseID,
		Amount:        payment.Amount,
		Discount:      payment.Discount,
		FinalAmount:   payment.FinalAmount,
		Currency:      payment.Currency,
		PaymentMethod: string(payment.Method),
		TransactionID: payment.TransactionID,
		CouponCode:    payment.CouponCode,
		Completed:     payment.Status == paymentdomain.StatusCompleted,
		CompletedAt:   payment.CompletedAt,
	})
	if err != nil {
		return settlement{}, err
	}

	return settlement{enrolled: provisioned.Created, invoice: invoice}, nil
}

// afterSettle runs once the completing transaction has committed.
func (s *Service) afterSettle(ctx context.Context, payment *paymentdomain.Payment, settled settlement) {
	if !settled.enrolled {
		return
	}
	s.obsMetrics.RecordProvisioned(ctx, string(payment.Method))

	if s.notifier == nil || settled.invoice == nil {
		return
	}
	inv := settled.invoice
	s.notifier.EnrollmentCompleted(ctx, notification.EnrollmentNotice{
		Email:         inv.CustomerEmail,
		CustomerName:  inv.CustomerName,
		CourseTitle:   inv.CourseName,
		InvoiceNumber: inv.InvoiceNumber,
		TransactionID: payment.TransactionID,
		AmountPaid:    format.FormatMoney(inv.Total, inv.Currency),
	})
}

// statusDetails records the gateway's raw status on the method details.
func statusDetails(current paymentdomain.MethodDetails, result paymentdomain.ChargeResult) paymentdomain.MethodDetails {
	switch d := current.(type) {
	case paymentdomain.BkashDetails:
		d.GatewayStatus = result.RawStatus
		if result.TransactionRef != "" {
			d.TrxID = result.TransactionRef
		}
		return d
	case paymentdomain.StripeDetails:
		d.IntentStatus = result.RawStatus
		return d
	case paymentdomain.VisaBDDetails:
		d.IntentStatus = result.RawStatus
		return d
	default:
		return current
	}
}
