package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// GenerateRequest is the payment snapshot an invoice is cut from.
type GenerateRequest struct {
	PaymentID     snowflake.ID
	UserID        snowflake.ID
	CourseID      snowflake.ID
	Amount        int64
	Discount      int64
	FinalAmount   int64
	Currency      string
	PaymentMethod string
	TransactionID string
	CouponCode    *string
	Completed     bool
	CompletedAt   *time.Time
	Notes         string
}

type Service interface {
	// Generate runs inside the completing transaction. A second call for the
	// same payment returns the invoice produced by the first.
	Generate(ctx context.Context, tx *gorm.DB, req GenerateRequest) (*Invoice, error)

	ListForUser(ctx context.Context, userID snowflake.ID) ([]Invoice, error)
	GetForUser(ctx context.Context, userID, id snowflake.ID) (*Invoice, error)
	GetByNumberForUser(ctx context.Context, userID snowflake.ID, number string) (*Invoice, error)
	GetByPaymentID(ctx context.Context, paymentID snowflake.ID) (*Invoice, error)
	RenderPDF(ctx context.Context, userID, id snowflake.ID) (*Invoice, []byte, error)
}

var (
	ErrNotFound          = errors.New("invoice_not_found")
	ErrInvalidID         = errors.New("invalid_invoice_id")
	ErrInvalidRequest    = errors.New("invalid_invoice_request")
	ErrNumberExhausted   = errors.New("invoice_number_exhausted")
	ErrRenderUnavailable = errors.New("invoice_render_unavailable")
)
