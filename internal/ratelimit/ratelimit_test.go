package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/learnpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckoutLimiterDisabledWithoutRedis(t *testing.T) {
	limiter := NewCheckoutLimiter(CheckoutParams{Config: config.Config{}, Log: zap.NewNop()})
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), EndpointInitiate, "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLockerNilClient(t *testing.T) {
	locker := NewLocker(nil)
	assert.False(t, locker.Enabled())

	_, _, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockerDisabled)
	assert.NoError(t, locker.Release(context.Background(), "k", "token"))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
	assert.Equal(t, 4*time.Second, defaultBucketTTL(5, 10))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(true, 0, 1))
	assert.Equal(t, 500*time.Millisecond, retryAfter(false, 0.5, 1))
}

func TestCasts(t *testing.T) {
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(7), castToInt("7"))
	assert.Equal(t, 2.5, castToFloat("2.5"))
	assert.Equal(t, float64(3), castToFloat(int64(3)))
}
