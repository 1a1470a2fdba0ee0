package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/learnpay/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/learnpay/internal/catalog/domain"
	"github.com/smallbiznis/learnpay/internal/clock"
	coupondomain "github.com/smallbiznis/learnpay/internal/coupon/domain"
	enrollmentdomain "github.com/smallbiznis/learnpay/internal/enrollment/domain"
	invoicedomain "github.com/smallbiznis/learnpay/internal/invoice/domain"
	"github.com/smallbiznis/learnpay/internal/notification"
	obsmetrics "github.com/smallbiznis/learnpay/internal/observability/metrics"
	"github.com/smallbiznis/learnpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/internal/pricing"
	userdomain "github.com/smallbiznis/learnpay/internal/user/domain"
	"github.com/smallbiznis/learnpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reasonExpired = "expired"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	Registry    *adapters.Registry
	Calculator  *pricing.Calculator
	Coupons     coupondomain.Service
	Catalog     catalogdomain.Service
	Users       userdomain.Directory
	Enrollments enrollmentdomain.Service
	Invoices    invoicedomain.Service
	Notifier    notification.Sink   `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	registry    *adapters.Registry
	calculator  *pricing.Calculator
	coupons     coupondomain.Service
	catalog     catalogdomain.Service
	users       userdomain.Directory
	enrollments enrollmentdomain.Service
	invoices    invoicedomain.Service
	notifier    notification.Sink
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics

	txnID func(time.Time) string
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		registry:    p.Registry,
		calculator:  p.Calculator,
		coupons:     p.Coupons,
		catalog:     p.Catalog,
		users:       p.Users,
		enrollments: p.Enrollments,
		invoices:    p.Invoices,
		notifier:    p.Notifier,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
		txnID:       newTransactionID,
	}
}

func (s *Service) ListForUser(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (paymentdomain.ListPaymentsResponse, error) {
	if userID == 0 {
		return paymentdomain.ListPaymentsResponse{}, userdomain.ErrInvalidID
	}
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	limit := page.Size()
	items, err := s.repo.ListByUser(ctx, s.db, userID, cursor, limit+1)
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(p *paymentdomain.Payment) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String()}
	})
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	resp := paymentdomain.ListPaymentsResponse{Payments: derefPayments(items)}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByTransactionID(ctx context.Context, viewer paymentdomain.Viewer, transactionID string) (*paymentdomain.Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, paymentdomain.ErrInvalidTransaction
	}
	payment, err := s.repo.FindByTransactionID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrNotFound
	}
	if !viewer.Admin && payment.UserID != viewer.UserID {
		return nil, paymentdomain.ErrNotFound
	}
	return payment, nil
}

func (s *Service) ListAll(ctx context.Context, page pagination.Offset) (paymentdomain.AdminListResponse, error) {
	page = page.Normalize()

	items, err := s.repo.ListAll(ctx, s.db, page.Limit, page.Offset)
	if err != nil {
		return paymentdomain.AdminListResponse{}, err
	}
	total, err := s.repo.CountAll(ctx, s.db)
	if err != nil {
		return paymentdomain.AdminListResponse{}, err
	}
	return paymentdomain.AdminListResponse{
		Payments: derefPayments(items),
		Total:    total,
	}, nil
}

// CancelStale closes pending attempts created before cutoff. Each attempt's
// charge is checked at the gateway first: a paid charge completes the
// payment, and an unpaid one is voided there before the row is cancelled.
// Attempts whose gateway cannot be reached stay pending for the next run.
// It returns how many attempts left pending.
func (s *Service) CancelStale(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	stale, err := s.repo.ListStale(ctx, s.db, cutoff.UTC(), limit)
	if err != nil {
		return 0, err
	}

	var closed, skipped int64
	for _, payment := range stale {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		ok, err := s.expire(ctx, payment)
		if err != nil {
			skipped++
			s.log.Warn("stale payment left pending",
				zap.String("transaction_id", payment.TransactionID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			closed++
		}
	}

	if closed > 0 || skipped > 0 {
		s.log.Info("swept stale payments",
			zap.Int64("closed", closed),
			zap.Int64("skipped", skipped),
			zap.Time("cutoff", cutoff),
		)
	}
	return closed, nil
}

func (s *Service) expire(ctx context.Context, payment *paymentdomain.Payment) (bool, error) {
	intentID := deref(payment.GatewayIntentID)
	var gateway paymentdomain.Gateway
	if kind, ok := adapters.KindForMethod(payment.Method); ok {
		gateway, _ = s.registry.ForKind(kind)
	}

	if gateway != nil && intentID != "" {
		result, err := gateway.ChargeStatus(ctx, paymentdomain.StatusQuery{Reference: intentID})
		if err != nil {
			return false, err
		}
		switch result.Status {
		case paymentdomain.ChargeSucceeded:
			s.log.Warn("stale payment was paid at the gateway",
				zap.String("transaction_id", payment.TransactionID),
			)
			if _, err := s.complete(ctx, payment, result); err != nil {
				return false, err
			}
			return true, nil
		case paymentdomain.ChargeProcessing:
			if _, err := s.applyChargeResult(ctx, payment, result); err != nil {
				return false, err
			}
			return true, nil
		}

		if canceller, ok := gateway.(paymentdomain.ChargeCanceller); ok {
			if err := canceller.CancelCharge(ctx, intentID); err != nil {
				return false, err
			}
		}
	}

	reason := reasonExpired
	return s.repo.Transition(ctx, s.db, paymentdomain.Transition{
		ID:            payment.ID,
		From:          []paymentdomain.Status{paymentdomain.StatusPending},
		To:            paymentdomain.StatusCancelled,
		At:            s.clock.Now(),
		FailureReason: &reason,
	})
}

func (s *Service) reload(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrNotFound
	}
	return payment, nil
}

func derefPayments(items []*paymentdomain.Payment) []paymentdomain.Payment {
	out := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}

func stringPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
