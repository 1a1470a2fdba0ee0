package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/pkg/db/pagination"
)

type InitiateRequest struct {
	UserID     snowflake.ID
	CourseID   snowflake.ID
	Method     string
	CouponCode string
	Currency   string
}

type ConfirmRequest struct {
	GatewayKind      string
	TransactionID    string
	GatewayReference string
	// UserID scopes the lookup to the caller; zero for trusted callers.
	UserID snowflake.ID
}

type RefundCommand struct {
	PaymentID snowflake.ID
	Reason    string
}

// Viewer is who is asking; admins see every payment.
type Viewer struct {
	UserID snowflake.ID
	Admin  bool
}

type ListPaymentsResponse struct {
	Payments []Payment           `json:"payments"`
	PageInfo pagination.PageInfo `json:"pageInfo"`
}

type AdminListResponse struct {
	Payments []Payment `json:"payments"`
	Total    int64     `json:"total"`
}

type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Payment, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*Payment, error)
	Refund(ctx context.Context, cmd RefundCommand) (*Payment, error)

	ListForUser(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (ListPaymentsResponse, error)
	GetByTransactionID(ctx context.Context, viewer Viewer, transactionID string) (*Payment, error)
	ListAll(ctx context.Context, page pagination.Offset) (AdminListResponse, error)

	// CancelStale cancels pending attempts created before cutoff.
	CancelStale(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// WebhookService ingests signed gateway callbacks.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
