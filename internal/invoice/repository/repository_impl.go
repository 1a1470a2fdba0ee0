package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/invoice/domain"
	"gorm.io/gorm"
)

const invoiceColumns = `id, invoice_number, payment_id, user_id, customer_name, customer_email,
	customer_phone, course_id, course_name, subtotal, discount, coupon_code, tax, total,
	currency, payment_method, transaction_id, is_paid, paid_at, notes, issued_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invoice) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		inv.ID,
		inv.InvoiceNumber,
		inv.PaymentID,
		inv.UserID,
		inv.CustomerName,
		inv.CustomerEmail,
		inv.CustomerPhone,
		inv.CourseID,
		inv.CourseName,
		inv.Subtotal,
		inv.Discount,
		inv.CouponCode,
		inv.Tax,
		inv.Total,
		inv.Currency,
		inv.PaymentMethod,
		inv.TransactionID,
		inv.IsPaid,
		inv.PaidAt,
		inv.Notes,
		inv.IssuedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Invoice, error) {
	return r.findOne(ctx, db, `invoice_number = ?`, number)
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db, `payment_id = ?`, paymentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*domain.Invoice, error) {
	var items []*domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE user_id = ?
		 ORDER BY issued_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
