// Package notification tells students about finished enrollments. Delivery
// is best effort and never blocks or fails the payment that triggered it.
package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/learnpay/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultSendTimeout = 15 * time.Second
	enrollmentTemplate = "enrollment_confirmed"
)

// EnrollmentNotice is what a student sees after a completed purchase.
type EnrollmentNotice struct {
	Email         string
	CustomerName  string
	CourseTitle   string
	InvoiceNumber string
	TransactionID string
	AmountPaid    string
}

// Sink receives enrollment notices after the surrounding transaction commits.
type Sink interface {
	EnrollmentCompleted(ctx context.Context, notice EnrollmentNotice)
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	Log       *zap.Logger
	Email     email.Provider
}

// Dispatcher sends notices on background goroutines.
type Dispatcher struct {
	log     *zap.Logger
	email   email.Provider
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(p Params) *Dispatcher {
	d := &Dispatcher{
		log:     p.Log.Named("notification.dispatcher"),
		email:   p.Email,
		timeout: defaultSendTimeout,
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				d.Wait()
				return nil
			},
		})
	}
	return d
}

func (d *Dispatcher) EnrollmentCompleted(ctx context.Context, notice EnrollmentNotice) {
	if d == nil || d.email == nil {
		return
	}
	to := strings.TrimSpace(notice.Email)
	if to == "" {
		return
	}

	// Detach from the request so a finished HTTP call does not cancel delivery.
	base := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notification panic", zap.Any("panic", r), zap.String("transaction_id", notice.TransactionID))
			}
		}()

		sendCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		subject := "You're enrolled in " + notice.CourseTitle
		if err := d.email.SendTemplate(sendCtx, []string{to}, subject, enrollmentTemplate, notice); err != nil {
			d.log.Warn("failed to send enrollment notice",
				zap.String("transaction_id", notice.TransactionID),
				zap.Error(err),
			)
			return
		}
		d.log.Debug("enrollment notice sent", zap.String("transaction_id", notice.TransactionID))
	}()
}

// Wait blocks until in-flight notices are done.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

var Module = fx.Module("notification",
	email.Module,
	fx.Provide(
		NewDispatcher,
		func(d *Dispatcher) Sink { return d },
	),
)
