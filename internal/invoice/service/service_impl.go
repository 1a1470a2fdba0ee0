package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/smallbiznis/learnpay/internal/catalog/domain"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/invoice/domain"
	"github.com/smallbiznis/learnpay/internal/invoice/format"
	"github.com/smallbiznis/learnpay/internal/invoice/render"
	userdomain "github.com/smallbiznis/learnpay/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxNumberAttempts = 5
	suffixLength      = 10
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Users    userdomain.Directory
	Catalog  catalogdomain.Service
	Renderer render.Renderer `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	users    userdomain.Directory
	catalog  catalogdomain.Service
	renderer render.Renderer
	suffix   func() string
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		users:    p.Users,
		catalog:  p.Catalog,
		renderer: p.Renderer,
		suffix:   randomSuffix,
	}
}

// randomSuffix takes the tail of a ULID: Crockford base32, random bits only.
func randomSuffix() string {
	id := ulid.Make().String()
	return id[len(id)-suffixLength:]
}

func (s *Service) Generate(ctx context.Context, tx *gorm.DB, req domain.GenerateRequest) (*domain.Invoice, error) {
	if req.PaymentID == 0 || req.UserID == 0 || req.CourseID == 0 || strings.TrimSpace(req.TransactionID) == "" {
		return nil, domain.ErrInvalidRequest
	}

	existing, err := s.repo.FindByPaymentID(ctx, tx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user, err := s.users.FindByIDTx(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	course, err := s.catalog.GetByIDTx(ctx, tx, req.CourseID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	inv := &domain.Invoice{
		ID:            s.genID.Generate(),
		PaymentID:     req.PaymentID,
		UserID:        user.ID,
		CustomerName:  user.DisplayName(),
		CustomerEmail: user.Email,
		CustomerPhone: user.Phone,
		CourseID:      course.ID,
		CourseName:    course.Title,
		Subtotal:      req.Amount,
		Discount:      req.Discount,
		CouponCode:    req.CouponCode,
		Tax:           0,
		Total:         req.FinalAmount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
		IsPaid:        req.Completed,
		Notes:         req.Notes,
		IssuedAt:      now,
	}
	if req.Completed {
		inv.PaidAt = req.CompletedAt
	}

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, now, s.suffix())
		if err != nil {
			return nil, err
		}
		inv.InvoiceNumber = number

		inserted, err := s.repo.Insert(ctx, tx, inv)
		if err != nil {
			return nil, err
		}
		if inserted {
			s.log.Info("invoice generated",
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.String("transaction_id", inv.TransactionID),
			)
			return inv, nil
		}

		// Either the payment was invoiced concurrently or the number collided.
		existing, err := s.repo.FindByPaymentID(ctx, tx, req.PaymentID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		s.log.Warn("invoice number collision, retrying", zap.String("invoice_number", number))
	}
	return nil, domain.ErrNumberExhausted
}

func (s *Service) ListForUser(ctx context.Context, userID snowflake.ID) ([]domain.Invoice, error) {
	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) GetForUser(ctx context.Context, userID, id snowflake.ID) (*domain.Invoice, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return ownedBy(item, userID)
}

func (s *Service) GetByNumberForUser(ctx context.Context, userID snowflake.ID, number string) (*domain.Invoice, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, domain.ErrInvalidID
	}
	item, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return nil, err
	}
	return ownedBy(item, userID)
}

func (s *Service) GetByPaymentID(ctx context.Context, paymentID snowflake.ID) (*domain.Invoice, error) {
	item, err := s.repo.FindByPaymentID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) RenderPDF(ctx context.Context, userID, id snowflake.ID) (*domain.Invoice, []byte, error) {
	if s.renderer == nil {
		return nil, nil, domain.ErrRenderUnavailable
	}
	item, err := s.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.renderer.RenderPDF(ctx, item)
	if err != nil {
		s.log.Error("render invoice pdf", zap.String("invoice_number", item.InvoiceNumber), zap.Error(err))
		return nil, nil, err
	}
	return item, doc, nil
}

// Another user's invoice is reported as missing.
func ownedBy(item *domain.Invoice, userID snowflake.ID) (*domain.Invoice, error) {
	if item == nil || item.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return item, nil
}
