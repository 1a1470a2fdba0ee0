package pricing

import (
	"github.com/smallbiznis/learnpay/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fx.Provide(func(h *config.ExchangeConfigHolder) RateProvider { return h }),
	fx.Provide(NewCalculator),
)
