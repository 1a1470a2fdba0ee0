package scheduler

import (
	"context"

	paymentservice "github.com/smallbiznis/learnpay/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(provideStaleCanceller),
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func provideStaleCanceller(svc *paymentservice.Service) StaleCanceller {
	return svc
}

func registerLifecycle(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start()
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
