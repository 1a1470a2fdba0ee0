package payment

import (
	"testing"

	"github.com/smallbiznis/learnpay/internal/config"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRegistryLeavesBkashOffWithoutMode(t *testing.T) {
	registry := NewRegistry(config.Config{Stripe: config.StripeConfig{SecretKey: "sk_test_1"}}, zap.NewNop())

	_, err := registry.ForMethod(paymentdomain.MethodBkash)
	assert.ErrorIs(t, err, paymentdomain.ErrMethodUnavailable)

	gateway, err := registry.ForMethod(paymentdomain.MethodStripe)
	require.NoError(t, err)
	assert.Equal(t, "stripe", gateway.Kind())
}

func TestNewRegistryRegistersConfiguredBkash(t *testing.T) {
	registry := NewRegistry(config.Config{Bkash: config.BkashConfig{Mode: config.BkashModeSandbox}}, zap.NewNop())

	gateway, err := registry.ForMethod(paymentdomain.MethodBkash)
	require.NoError(t, err)
	assert.Equal(t, "bkash", gateway.Kind())

	_, err = registry.ForMethod(paymentdomain.MethodStripe)
	assert.ErrorIs(t, err, paymentdomain.ErrMethodUnavailable)
}
