// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Invoice is an immutable snapshot of a settled payment. Customer and course
// fields are copied so the document survives later profile or catalog edits.
type Invoice struct {
	ID            snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	InvoiceNumber string       `gorm:"column:invoice_number" json:"invoiceNumber"`
	PaymentID     snowflake.ID `gorm:"column:payment_id" json:"paymentId"`
	UserID        snowflake.ID `gorm:"column:user_id" json:"userId"`
	CustomerName  string       `gorm:"column:customer_name" json:"customerName"`
	CustomerEmail string       `gorm:"column:customer_email" json:"customerEmail"`
	CustomerPhone string       `gorm:"column:customer_phone" json:"customerPhone,omitempty"`
	CourseID      snowflake.ID `gorm:"column:course_id" json:"courseId"`
	CourseName    string       `gorm:"column:course_name" json:"courseName"`
	Subtotal      int64        `gorm:"column:subtotal" json:"subtotal"`
	Discount      int64        `gorm:"column:discount" json:"discount"`
	CouponCode    *string      `gorm:"column:coupon_code" json:"couponCode,omitempty"`
	Tax           int64        `gorm:"column:tax" json:"tax"`
	Total         int64        `gorm:"column:total" json:"total"`
	Currency      string       `gorm:"column:currency" json:"currency"`
	PaymentMethod string       `gorm:"column:payment_method" json:"paymentMethod"`
	TransactionID string       `gorm:"column:transaction_id" json:"transactionId"`
	IsPaid        bool         `gorm:"column:is_paid" json:"isPaid"`
	PaidAt        *time.Time   `gorm:"column:paid_at" json:"paidAt,omitempty"`
	Notes         string       `gorm:"column:notes" json:"notes,omitempty"`
	IssuedAt      time.Time    `gorm:"column:issued_at" json:"issuedAt"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
