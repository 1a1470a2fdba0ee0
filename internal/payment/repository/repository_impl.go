package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentColumns = `id, transaction_id, user_id, course_id, amount, discount, final_amount,
	currency, payment_method, status, gateway_intent_id, gateway_client_secret,
	gateway_transaction_id, coupon_id, coupon_code, failure_reason, refund_reason,
	refunded_at, completed_at, details, created_at, updated_at`

type paymentRow struct {
	ID                   snowflake.ID   `gorm:"column:id"`
	TransactionID        string         `gorm:"column:transaction_id"`
	UserID               snowflake.ID   `gorm:"column:user_id"`
	CourseID             snowflake.ID   `gorm:"column:course_id"`
	Amount               int64          `gorm:"column:amount"`
	Discount             int64          `gorm:"column:discount"`
	FinalAmount          int64          `gorm:"column:final_amount"`
	Currency             string         `gorm:"column:currency"`
	PaymentMethod        string         `gorm:"column:payment_method"`
	Status               string         `gorm:"column:status"`
	GatewayIntentID      *string        `gorm:"column:gateway_intent_id"`
	GatewayClientSecret  *string        `gorm:"column:gateway_client_secret"`
	GatewayTransactionID *string        `gorm:"column:gateway_transaction_id"`
	CouponID             *snowflake.ID  `gorm:"column:coupon_id"`
	CouponCode           *string        `gorm:"column:coupon_code"`
	FailureReason        *string        `gorm:"column:failure_reason"`
	RefundReason         *string        `gorm:"column:refund_reason"`
	RefundedAt           *time.Time     `gorm:"column:refunded_at"`
	CompletedAt          *time.Time     `gorm:"column:completed_at"`
	Details              datatypes.JSON `gorm:"column:details"`
	CreatedAt            time.Time      `gorm:"column:created_at"`
	UpdatedAt            time.Time      `gorm:"column:updated_at"`
}

func (r paymentRow) toDomain() (*domain.Payment, error) {
	details, err := domain.DecodeDetails(r.Details)
	if err != nil {
		return nil, err
	}
	return &domain.Payment{
		ID:                   r.ID,
		TransactionID:        r.TransactionID,
		UserID:               r.UserID,
		CourseID:             r.CourseID,
		Amount:               r.Amount,
		Discount:             r.Discount,
		FinalAmount:          r.FinalAmount,
		Currency:             r.Currency,
		Method:               domain.Method(r.PaymentMethod),
		Status:               domain.Status(r.Status),
		GatewayIntentID:      r.GatewayIntentID,
		GatewayClientSecret:  r.GatewayClientSecret,
		GatewayTransactionID: r.GatewayTransactionID,
		CouponID:             r.CouponID,
		CouponCode:           r.CouponCode,
		FailureReason:        r.FailureReason,
		RefundReason:         r.RefundReason,
		RefundedAt:           r.RefundedAt,
		CompletedAt:          r.CompletedAt,
		Details:              details,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}, nil
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) (bool, error) {
	details, err := domain.EncodeDetails(p.Details)
	if err != nil {
		return false, err
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		p.ID,
		p.TransactionID,
		p.UserID,
		p.CourseID,
		p.Amount,
		p.Discount,
		p.FinalAmount,
		p.Currency,
		p.Method,
		p.Status,
		p.GatewayIntentID,
		p.GatewayClientSecret,
		p.GatewayTransactionID,
		p.CouponID,
		p.CouponCode,
		p.FailureReason,
		p.RefundReason,
		p.RefundedAt,
		p.CompletedAt,
		details,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `transaction_id = ?`, transactionID)
}

func (r *repo) FindByGatewayIntent(ctx context.Context, db *gorm.DB, intentID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `gateway_intent_id = ?`, intentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Payment, error) {
	var row paymentRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toDomain()
}

// ListByUser pages newest first. Snowflake ids are time ordered, so the
// cursor only needs the last id seen.
func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = ?`
	args := []any{userID}
	if cursor != nil && cursor.ID != "" {
		lastID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		query += ` AND id < ?`
		args = append(args, lastID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	return r.list(ctx, db, query, args...)
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB, limit, offset int) ([]*domain.Payment, error) {
	return r.list(ctx, db,
		`SELECT `+paymentColumns+` FROM payments ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
}

func (r *repo) list(ctx context.Context, db *gorm.DB, query string, args ...any) ([]*domain.Payment, error) {
	var rows []paymentRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Payment, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *repo) CountAll(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM payments`).Scan(&total).Error
	return total, err
}

func (r *repo) AttachGateway(ctx context.Context, db *gorm.DB, id snowflake.ID, handle domain.GatewayHandle, at time.Time) (bool, error) {
	details, err := domain.EncodeDetails(handle.Details)
	if err != nil {
		return false, err
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET gateway_intent_id = ?, gateway_client_secret = ?, details = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		handle.IntentID,
		handle.ClientSecret,
		details,
		at,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Transition applies a status change only from the allowed states. Nil
// optional fields keep their stored values.
func (r *repo) Transition(ctx context.Context, db *gorm.DB, t domain.Transition) (bool, error) {
	sets := `status = ?, updated_at = ?`
	args := []any{t.To, t.At}

	switch t.To {
	case domain.StatusCompleted:
		sets += `, completed_at = ?`
		args = append(args, t.At)
	case domain.StatusRefunded:
		sets += `, refunded_at = ?`
		args = append(args, t.At)
	}
	if t.GatewayTransactionID != nil {
		sets += `, gateway_transaction_id = ?`
		args = append(args, *t.GatewayTransactionID)
	}
	if t.FailureReason != nil {
		sets += `, failure_reason = ?`
		args = append(args, *t.FailureReason)
	}
	if t.RefundReason != nil {
		sets += `, refund_reason = ?`
		args = append(args, *t.RefundReason)
	}
	if t.Details != nil {
		details, err := domain.EncodeDetails(t.Details)
		if err != nil {
			return false, err
		}
		sets += `, details = ?`
		args = append(args, details)
	}
	args = append(args, t.ID, t.From)

	res := db.WithContext(ctx).Exec(
		`UPDATE payments SET `+sets+` WHERE id = ? AND status IN ?`,
		args...,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindOpenAttempt(ctx context.Context, db *gorm.DB, userID, courseID snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db,
		`user_id = ? AND course_id = ? AND status IN ?`,
		userID,
		courseID,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing},
	)
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	return r.list(ctx, db,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		cutoff,
		limit,
	)
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, gateway_reference,
			payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, gateway_reference,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.GatewayReference,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
