package service_test

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/learnpay/internal/audit/domain"
	"github.com/smallbiznis/learnpay/internal/audit/repository"
	"github.com/smallbiznis/learnpay/internal/audit/service"
	"github.com/smallbiznis/learnpay/internal/clock"
	obscontext "github.com/smallbiznis/learnpay/internal/observability/context"
	"github.com/smallbiznis/learnpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) auditdomain.Service {
	t.Helper()
	return service.NewService(service.Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestRecordUsesContextActor(t *testing.T) {
	svc := newService(t)
	ctx := obscontext.WithActor(context.Background(), "user", "77")
	ctx = obscontext.WithRequestID(ctx, "req-9")

	err := svc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionPaymentRefund,
		TargetType: auditdomain.TargetPayment,
		TargetID:   "123",
		Metadata: map[string]any{
			"reason":            "duplicate purchase",
			"gateway_reference": "pi_1234567890",
		},
	})
	require.NoError(t, err)

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{TargetType: auditdomain.TargetPayment, TargetID: "123"})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	assert.Equal(t, "req-9", entry.RequestID)
	assert.Equal(t, "duplicate purchase", entry.Metadata["reason"])
	assert.Equal(t, "pi_****7890", entry.Metadata["gateway_reference"])
}

func TestRecordRequiresAction(t *testing.T) {
	svc := newService(t)
	err := svc.Record(context.Background(), auditdomain.Entry{Action: "  "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{Action: auditdomain.ActionCouponDelete}))

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{Action: auditdomain.ActionCouponDelete})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "system", logs[0].ActorType)
	assert.Equal(t, "unknown", logs[0].TargetType)
	assert.Nil(t, logs[0].ActorID)
}
