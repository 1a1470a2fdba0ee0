package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/cache"
	"github.com/smallbiznis/learnpay/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.CourseCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.CourseCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Course, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	if s.cache != nil {
		if course, ok := s.cache.Get(ctx, id); ok {
			return course, nil
		}
	}

	course, err := s.GetByIDTx(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, course)
	}
	return course, nil
}

func (s *Service) GetByIDTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Course, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	course, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, domain.ErrNotFound
	}
	return course, nil
}

func (s *Service) IncrementEnrollmentCount(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	ok, err := s.repo.IncrementEnrollmentCount(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return nil
}
