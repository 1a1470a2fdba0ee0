package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/learnpay/internal/catalog/domain"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/enrollment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
		log:     p.Log.Named("enrollment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

func (s *Service) IsEnrolled(ctx context.Context, userID, courseID snowflake.ID) (bool, error) {
	item, err := s.repo.FindByUserCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

func (s *Service) Get(ctx context.Context, userID, courseID snowflake.ID) (*domain.Enrollment, error) {
	item, err := s.repo.FindByUserCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetProgress(ctx context.Context, enrollmentID snowflake.ID) (*domain.Progress, error) {
	item, err := s.repo.FindProgress(ctx, s.db, enrollmentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// Provision writes the enrollment, its progress row and the course counter
// using tx. An existing enrollment for the pair is returned untouched.
func (s *Service) Provision(ctx context.Context, tx *gorm.DB, req domain.ProvisionRequest) (domain.ProvisionResult, error) {
	if req.PaymentID == 0 || req.UserID == 0 || req.CourseID == 0 {
		return domain.ProvisionResult{}, domain.ErrInvalidRequest
	}

	existing, err := s.repo.FindByUserCourse(ctx, tx, req.UserID, req.CourseID)
	if err != nil {
		return domain.ProvisionResult{}, err
	}
	if existing != nil {
		return domain.ProvisionResult{Enrollment: existing}, nil
	}

	now := s.clock.Now()
	enrollment := &domain.Enrollment{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		CourseID:      req.CourseID,
		PaymentID:     req.PaymentID,
		PricePaid:     req.PricePaid,
		Currency:      req.Currency,
		PaymentStatus: domain.PaymentStatusCompleted,
		CouponCode:    req.CouponCode,
		EnrolledAt:    now,
		UpdatedAt:     now,
	}
	inserted, err := s.repo.Insert(ctx, tx, enrollment)
	if err != nil {
		return domain.ProvisionResult{}, err
	}
	if !inserted {
		existing, err = s.repo.FindByUserCourse(ctx, tx, req.UserID, req.CourseID)
		if err != nil {
			return domain.ProvisionResult{}, err
		}
		return domain.ProvisionResult{Enrollment: existing}, nil
	}

	if err := s.repo.InsertProgress(ctx, tx, &domain.Progress{
		ID:                   s.genID.Generate(),
		EnrollmentID:         enrollment.ID,
		UserID:               req.UserID,
		CourseID:             req.CourseID,
		Status:               domain.ProgressNotStarted,
		CompletionPercentage: 0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}); err != nil {
		return domain.ProvisionResult{}, err
	}

	if err := s.catalog.IncrementEnrollmentCount(ctx, tx, req.CourseID); err != nil {
		return domain.ProvisionResult{}, err
	}

	s.log.Info("enrollment provisioned",
		zap.String("enrollment_id", enrollment.ID.String()),
		zap.String("payment_id", req.PaymentID.String()),
		zap.String("course_id", req.CourseID.String()),
	)
	return domain.ProvisionResult{Enrollment: enrollment, Created: true}, nil
}

// MarkRefunded flags the enrollment created by paymentID. Access is kept.
func (s *Service) MarkRefunded(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) error {
	affected, err := s.repo.UpdatePaymentStatusByPayment(ctx, tx, paymentID, domain.PaymentStatusRefunded, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		s.log.Warn("refunded payment has no enrollment", zap.String("payment_id", paymentID.String()))
	}
	return nil
}
