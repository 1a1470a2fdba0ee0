package payment

import (
	"strings"

	"github.com/smallbiznis/learnpay/internal/config"
	"github.com/smallbiznis/learnpay/internal/payment/adapters"
	"github.com/smallbiznis/learnpay/internal/payment/adapters/bkash"
	"github.com/smallbiznis/learnpay/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/learnpay/internal/payment/service"
	"github.com/smallbiznis/learnpay/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) paymentdomain.Service { return s }),
	fx.Provide(webhook.NewService),
)

// NewRegistry builds the gateways enabled by configuration. Stripe needs a
// secret key and bKash needs BKASH_MODE.
func NewRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	log = log.Named("payment.registry")
	gateways := []paymentdomain.Gateway{}

	if strings.TrimSpace(cfg.Stripe.SecretKey) != "" {
		gateways = append(gateways, stripe.New(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			APIBase:       cfg.Stripe.APIBase,
		}))
	} else {
		log.Warn("stripe disabled: STRIPE_SECRET_KEY is not set")
	}

	if cfg.Bkash.Enabled() {
		if cfg.Bkash.Mode == config.BkashModeSandbox {
			log.Warn("bkash running in sandbox mode; payments are not verified against bKash")
		}
		gateways = append(gateways, bkash.New(bkash.Config{
			Mode:        cfg.Bkash.Mode,
			APIBase:     cfg.Bkash.APIBase,
			AppKey:      cfg.Bkash.AppKey,
			AppSecret:   cfg.Bkash.AppSecret,
			Username:    cfg.Bkash.Username,
			Password:    cfg.Bkash.Password,
			CallbackURL: cfg.Bkash.CallbackURL,
		}))
	} else {
		log.Warn("bkash disabled: BKASH_MODE is not set")
	}

	kinds := make([]string, 0, len(gateways))
	for _, g := range gateways {
		kinds = append(kinds, g.Kind())
	}
	log.Info("payment gateways ready", zap.Strings("gateways", kinds))

	return adapters.NewRegistry(gateways...)
}
