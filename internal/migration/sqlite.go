package migration

import (
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors migrations/ for local runs and package tests.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		price_minor INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		is_free BOOLEAN NOT NULL DEFAULT 0,
		enrollment_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		discount_type TEXT NOT NULL,
		discount_value TEXT NOT NULL,
		min_purchase_amount INTEGER,
		max_discount_amount INTEGER,
		course_id INTEGER,
		valid_from DATETIME,
		valid_until DATETIME,
		usage_limit INTEGER NOT NULL DEFAULT -1,
		used_count INTEGER NOT NULL DEFAULT 0,
		usage_limit_per_user INTEGER NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY,
		transaction_id TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		discount INTEGER NOT NULL DEFAULT 0,
		final_amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_intent_id TEXT,
		gateway_client_secret TEXT,
		gateway_transaction_id TEXT,
		coupon_id INTEGER REFERENCES coupons (id) ON DELETE SET NULL,
		coupon_code TEXT,
		failure_reason TEXT,
		refund_reason TEXT,
		refunded_at DATETIME,
		completed_at DATETIME,
		details TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (final_amount = amount - discount)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_open_attempt
		ON payments (user_id, course_id) WHERE status IN ('pending', 'processing')`,
	`CREATE INDEX IF NOT EXISTS ix_payments_intent ON payments (gateway_intent_id)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		payment_id INTEGER NOT NULL,
		price_paid INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		coupon_code TEXT,
		enrolled_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (user_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS progress (
		id INTEGER PRIMARY KEY,
		enrollment_id INTEGER NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		completion_percentage INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY,
		invoice_number TEXT NOT NULL UNIQUE,
		payment_id INTEGER NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		course_id INTEGER NOT NULL,
		course_name TEXT NOT NULL,
		subtotal INTEGER NOT NULL,
		discount INTEGER NOT NULL DEFAULT 0,
		coupon_code TEXT,
		tax INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT 0,
		paid_at DATETIME,
		notes TEXT NOT NULL DEFAULT '',
		issued_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		gateway_reference TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		request_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
}

// EnsureSQLiteSchema creates every table on a sqlite connection.
func EnsureSQLiteSchema(db *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}
