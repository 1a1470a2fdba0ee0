package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/pkg/db/pagination"
	"gorm.io/gorm"
)

// Transition describes a conditional status change; it only applies while the
// row is in one of From.
type Transition struct {
	ID                   snowflake.ID
	From                 []Status
	To                   Status
	At                   time.Time
	GatewayTransactionID *string
	FailureReason        *string
	RefundReason         *string
	Details              MethodDetails
}

type GatewayHandle struct {
	IntentID     *string
	ClientSecret *string
	Details      MethodDetails
}

type Repository interface {
	// Insert returns false when the transaction id is already taken.
	Insert(ctx context.Context, db *gorm.DB, p *Payment) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*Payment, error)
	FindByGatewayIntent(ctx context.Context, db *gorm.DB, intentID string) (*Payment, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*Payment, error)
	ListAll(ctx context.Context, db *gorm.DB, limit, offset int) ([]*Payment, error)
	CountAll(ctx context.Context, db *gorm.DB) (int64, error)

	AttachGateway(ctx context.Context, db *gorm.DB, id snowflake.ID, handle GatewayHandle, at time.Time) (bool, error)
	Transition(ctx context.Context, db *gorm.DB, t Transition) (bool, error)
	// FindOpenAttempt returns the pending or processing payment for the pair.
	FindOpenAttempt(ctx context.Context, db *gorm.DB, userID, courseID snowflake.ID) (*Payment, error)
	// ListStale returns pending payments created before cutoff, oldest first.
	ListStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Payment, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
