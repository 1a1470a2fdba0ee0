package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionCouponCreate  = "coupon.create"
	ActionCouponUpdate  = "coupon.update"
	ActionCouponDelete  = "coupon.delete"
	ActionPaymentRefund = "payment.refund"

	TargetCoupon  = "coupon"
	TargetPayment = "payment"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actorType"`
	ActorID    *string           `json:"actorId,omitempty"`
	Action     string            `json:"action"`
	TargetType string            `json:"targetType"`
	TargetID   *string           `json:"targetId,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	RequestID  string            `json:"requestId,omitempty"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

// Entry describes one admin action. Actor fields default to the caller
// stored on the context.
type Entry struct {
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
)
