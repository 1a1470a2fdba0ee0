package service

import (
	"context"
	"errors"
	"strings"

	catalogdomain "github.com/smallbiznis/learnpay/internal/catalog/domain"
	coupondomain "github.com/smallbiznis/learnpay/internal/coupon/domain"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/internal/pricing"
	userdomain "github.com/smallbiznis/learnpay/internal/user/domain"
	"github.com/smallbiznis/learnpay/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (*paymentdomain.Payment, error) {
	if req.UserID == 0 || req.CourseID == 0 {
		return nil, paymentdomain.ErrInvalidID
	}
	method, ok := paymentdomain.ParseMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if !ok {
		return nil, paymentdomain.ErrInvalidMethod
	}
	requested := strings.ToUpper(strings.TrimSpace(req.Currency))
	if requested != "" && requested != pricing.CurrencyUSD && requested != pricing.CurrencyBDT {
		return nil, pricing.ErrUnsupportedCurrency
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, req.UserID, req.CourseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, paymentdomain.ErrAlreadyEnrolled
	}
	attempt, err := s.repo.FindOpenAttempt(ctx, s.db, req.UserID, req.CourseID)
	if err != nil {
		return nil, err
	}
	if attempt != nil {
		return nil, paymentdomain.ErrCheckoutInProgress
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	course, err := s.catalog.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	if course.FreeEquivalent() {
		quote := pricing.FreeQuote(course.PriceMinor, course.Currency)
		return s.completeFree(ctx, user, course, quote, nil, paymentdomain.FreeReasonCourse)
	}

	var discount *coupondomain.Discount
	if code := coupondomain.NormalizeCode(req.CouponCode); code != "" {
		evaluated, err := s.coupons.Evaluate(ctx, coupondomain.EvaluateRequest{
			Code:     code,
			CourseID: course.ID,
			UserID:   user.ID,
			Amount:   course.PriceMinor,
		})
		if err != nil {
			return nil, err
		}
		discount = &evaluated
	}

	input := pricing.QuoteInput{
		PriceMinor:        course.PriceMinor,
		Currency:          course.Currency,
		IsFree:            course.IsFree,
		Method:            string(method),
		RequestedCurrency: requested,
	}
	if discount != nil {
		input.DiscountMinor = discount.Amount
	}
	quote, err := s.calculator.Quote(input)
	if err != nil {
		return nil, err
	}
	if quote.Free {
		return s.completeFree(ctx, user, course, quote, discount, paymentdomain.FreeReasonCouponDiscount)
	}

	gateway, err := s.registry.ForMethod(method)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:          s.genID.Generate(),
		UserID:      user.ID,
		CourseID:    course.ID,
		Amount:      quote.Amount,
		Discount:    quote.Discount,
		FinalAmount: quote.Final,
		Currency:    quote.Currency,
		Method:      method,
		Status:      paymentdomain.StatusPending,
		Details:     initialDetails(method, quote.Conversion, user.Email),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyCoupon(payment, discount)

	// The open-attempt index admits one pending or processing row per
	// (user, course); a concurrent initiate loses here.
	if err := s.insertPayment(ctx, s.db, payment); err != nil {
		return nil, err
	}

	// The charge is requested after commit; no row stays locked while the
	// gateway answers.
	charge, err := gateway.CreateCharge(ctx, paymentdomain.ChargeRequest{
		Amount:        payment.FinalAmount,
		Currency:      payment.Currency,
		Description:   course.Title,
		ReceiptEmail:  user.Email,
		TransactionID: payment.TransactionID,
	})
	if err != nil {
		s.log.Warn("gateway charge creation failed",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("gateway", gateway.Kind()),
			zap.Error(err),
		)
		s.failPending(ctx, payment, "charge creation failed")
		return nil, paymentdomain.NewGatewayError(gateway.Kind(), "create_charge", err)
	}

	handle := paymentdomain.GatewayHandle{
		IntentID:     stringPtr(charge.Reference),
		ClientSecret: stringPtr(charge.ClientSecret),
		Details:      chargeDetails(payment.Details, charge),
	}
	attached, err := s.repo.AttachGateway(ctx, s.db, payment.ID, handle, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !attached {
		// Swept between insert and attach; nobody will confirm this charge.
		s.voidCharge(ctx, gateway, payment, charge.Reference)
		return s.reload(ctx, payment.ID)
	}
	payment.GatewayIntentID = handle.IntentID
	payment.GatewayClientSecret = handle.ClientSecret
	payment.Details = handle.Details

	s.obsMetrics.RecordInitiated(ctx, string(payment.Method), payment.Currency)
	return payment, nil
}

// completeFree settles a zero-value enrollment in one transaction.
func (s *Service) completeFree(
	ctx context.Context,
	user *userdomain.User,
	course *catalogdomain.Course,
	quote pricing.Quote,
	discount *coupondomain.Discount,
	reason string,
) (*paymentdomain.Payment, error) {
	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:          s.genID.Generate(),
		UserID:      user.ID,
		CourseID:    course.ID,
		Amount:      quote.Amount,
		Discount:    quote.Discount,
		FinalAmount: 0,
		Currency:    quote.Currency,
		Method:      paymentdomain.MethodFree,
		Status:      paymentdomain.StatusCompleted,
		CompletedAt: &now,
		Details:     paymentdomain.FreeDetails{Reason: reason},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyCoupon(payment, discount)

	var settled settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertPayment(ctx, tx, payment); err != nil {
			return err
		}
		var err error
		settled, err = s.settle(ctx, tx, payment, true)
		if err != nil {
			return err
		}
		if !settled.enrolled {
			return paymentdomain.ErrAlreadyEnrolled
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, paymentdomain.ErrAlreadyEnrolled) {
			s.log.Error("free enrollment failed",
				zap.String("transaction_id", payment.TransactionID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.obsMetrics.RecordInitiated(ctx, string(payment.Method), payment.Currency)
	s.afterSettle(ctx, payment, settled)
	return payment, nil
}

// insertPayment assigns a fresh transaction id, retrying on collision.
func (s *Service) insertPayment(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment) error {
	for attempt := 0; attempt < maxTransactionIDTry; attempt++ {
		payment.TransactionID = s.txnID(payment.CreatedAt)
		inserted, err := s.repo.Insert(ctx, tx, payment)
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return paymentdomain.ErrCheckoutInProgress
			}
			return err
		}
		if inserted {
			return nil
		}
		s.log.Warn("transaction id collision", zap.String("transaction_id", payment.TransactionID))
	}
	return paymentdomain.ErrTransactionIDExhausted
}

// voidCharge cancels a gateway charge that no payment row tracks any more.
func (s *Service) voidCharge(ctx context.Context, gateway paymentdomain.Gateway, payment *paymentdomain.Payment, reference string) {
	canceller, ok := gateway.(paymentdomain.ChargeCanceller)
	if !ok || strings.TrimSpace(reference) == "" {
		return
	}
	if err := canceller.CancelCharge(ctx, reference); err != nil {
		s.log.Error("failed to void orphaned gateway charge",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("gateway", gateway.Kind()),
			zap.String("gateway_reference", reference),
			zap.Error(err),
		)
	}
}

func (s *Service) failPending(ctx context.Context, payment *paymentdomain.Payment, reason string) {
	_, err := s.repo.Transition(ctx, s.db, paymentdomain.Transition{
		ID:            payment.ID,
		From:          []paymentdomain.Status{paymentdomain.StatusPending},
		To:            paymentdomain.StatusFailed,
		At:            s.clock.Now(),
		FailureReason: &reason,
	})
	if err != nil {
		s.log.Error("failed to mark payment failed",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
	}
}

func applyCoupon(payment *paymentdomain.Payment, discount *coupondomain.Discount) {
	if discount == nil || discount.Coupon == nil {
		return
	}
	id := discount.Coupon.ID
	code := discount.Coupon.Code
	payment.CouponID = &id
	payment.CouponCode = &code
}

func initialDetails(method paymentdomain.Method, conversion *pricing.Conversion, email string) paymentdomain.MethodDetails {
	switch method {
	case paymentdomain.MethodBkash:
		return paymentdomain.BkashDetails{Conversion: conversion}
	case paymentdomain.MethodVisaBD:
		return paymentdomain.VisaBDDetails{Conversion: conversion}
	default:
		return paymentdomain.StripeDetails{ReceiptEmail: email, Conversion: conversion}
	}
}

func chargeDetails(current paymentdomain.MethodDetails, charge paymentdomain.Charge) paymentdomain.MethodDetails {
	switch d := current.(type) {
	case paymentdomain.BkashDetails:
		d.PaymentID = charge.Reference
		d.CheckoutURL = charge.RedirectURL
		d.GatewayStatus = charge.RawStatus
		return d
	case paymentdomain.VisaBDDetails:
		d.IntentStatus = charge.RawStatus
		return d
	case paymentdomain.StripeDetails:
		d.IntentStatus = charge.RawStatus
		return d
	default:
		return current
	}
}
