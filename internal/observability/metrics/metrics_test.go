package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("method", "stripe"),
		attribute.String("user_id", "456"),
		attribute.String("transaction_id", "TXN-1"),
		attribute.String("outcome", "completed"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("method"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordInitiated(context.Background(), "stripe", "USD")
		m.RecordConfirmed(context.Background(), "stripe", "completed")
		m.RecordRefunded(context.Background(), "stripe")
		m.RecordReconciliation(context.Background(), "stripe", "late_capture")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "learnpay"}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordProvisioned(context.Background(), "free")
		m.RecordPaymentEvent(context.Background(), "stripe", "payment_intent.succeeded")
	})
}
