package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
)

// Open reports whether the attempt is waiting for the customer or gateway.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusProcessing
}

// Abandoned reports an attempt closed on our side whose gateway charge may
// still be paid, e.g. a retried card on a failed intent.
func (s Status) Abandoned() bool {
	return s == StatusFailed || s == StatusCancelled
}

type Method string

const (
	MethodStripe Method = "stripe"
	MethodBkash  Method = "bkash"
	MethodVisaBD Method = "visa_bd"
	MethodFree   Method = "free"
)

// ParseMethod accepts the methods a customer may choose at checkout.
func ParseMethod(raw string) (Method, bool) {
	switch Method(raw) {
	case MethodStripe, MethodBkash, MethodVisaBD:
		return Method(raw), true
	default:
		return "", false
	}
}

// Payment is one purchase attempt. Amounts are minor units of Currency and
// FinalAmount is always Amount - Discount.
type Payment struct {
	ID                   snowflake.ID  `json:"id"`
	TransactionID        string        `json:"transactionId"`
	UserID               snowflake.ID  `json:"userId"`
	CourseID             snowflake.ID  `json:"courseId"`
	Amount               int64         `json:"amount"`
	Discount             int64         `json:"discount"`
	FinalAmount          int64         `json:"finalAmount"`
	Currency             string        `json:"currency"`
	Method               Method        `json:"paymentMethod"`
	Status               Status        `json:"status"`
	GatewayIntentID      *string       `json:"gatewayIntentId,omitempty"`
	GatewayClientSecret  *string       `json:"gatewayClientSecret,omitempty"`
	GatewayTransactionID *string       `json:"gatewayTransactionId,omitempty"`
	CouponID             *snowflake.ID `json:"couponId,omitempty"`
	CouponCode           *string       `json:"couponCode,omitempty"`
	FailureReason        *string       `json:"failureReason,omitempty"`
	RefundReason         *string       `json:"refundReason,omitempty"`
	RefundedAt           *time.Time    `json:"refundedAt,omitempty"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	Details              MethodDetails `json:"details,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// EventRecord is a gateway webhook delivery, unique per provider event id.
type EventRecord struct {
	ID               snowflake.ID   `json:"id" gorm:"column:id;primaryKey"`
	Provider         string         `json:"provider" gorm:"column:provider"`
	ProviderEventID  string         `json:"providerEventId" gorm:"column:provider_event_id"`
	EventType        string         `json:"eventType" gorm:"column:event_type"`
	GatewayReference string         `json:"gatewayReference" gorm:"column:gateway_reference"`
	Payload          datatypes.JSON `json:"payload" gorm:"column:payload"`
	ReceivedAt       time.Time      `json:"receivedAt" gorm:"column:received_at"`
	ProcessedAt      *time.Time     `json:"processedAt" gorm:"column:processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded  = "payment_succeeded"
	EventTypePaymentFailed     = "payment_failed"
	EventTypePaymentProcessing = "payment_processing"
)

// GatewayEvent is the canonical webhook event parsed by adapters.
type GatewayEvent struct {
	Provider         string
	ProviderEventID  string
	Type             string
	GatewayReference string
	Amount           int64
	Currency         string
	OccurredAt       time.Time
	RawPayload       []byte
}
