package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/learnpay/internal/config"
	obsmetrics "github.com/smallbiznis/learnpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EndpointInitiate    = "initiate"
	EndpointCheckCoupon = "check_coupon"

	keyCheckout = "learnpay:ratelimit:%s:user:%s"
)

// CheckoutLimiter throttles checkout calls per user. A nil limiter allows everything.
type CheckoutLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

type CheckoutParams struct {
	fx.In

	Client  *redis.Client `optional:"true"`
	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewCheckoutLimiter(p CheckoutParams) *CheckoutLimiter {
	if p.Client == nil || p.Config.Payment.CheckoutRate <= 0 || p.Config.Payment.CheckoutBurst <= 0 {
		return nil
	}
	return &CheckoutLimiter{
		bucket:  NewTokenBucket(p.Client),
		rate:    float64(p.Config.Payment.CheckoutRate) / float64(time.Minute/time.Second),
		burst:   p.Config.Payment.CheckoutBurst,
		log:     p.Log.Named("ratelimit.checkout"),
		metrics: p.Metrics,
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether userID may call endpoint now. Redis failures fail open.
func (l *CheckoutLimiter) Allow(ctx context.Context, endpoint, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}

	key := fmt.Sprintf(keyCheckout, endpoint, strings.TrimSpace(userID))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.String("endpoint", endpoint), zap.Error(err))
		return &RateLimitResult{Allowed: true}, nil
	}
	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, endpoint)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "user_bucket_empty")
	}
	return res, nil
}
