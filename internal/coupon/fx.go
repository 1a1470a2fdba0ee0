package coupon

import (
	"github.com/smallbiznis/learnpay/internal/coupon/repository"
	"github.com/smallbiznis/learnpay/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
