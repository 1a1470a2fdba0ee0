package enrollment

import (
	"github.com/smallbiznis/learnpay/internal/enrollment/repository"
	"github.com/smallbiznis/learnpay/internal/enrollment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("enrollment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
