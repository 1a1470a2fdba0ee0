package catalog

import (
	"github.com/smallbiznis/learnpay/internal/cache"
	"github.com/smallbiznis/learnpay/internal/catalog/repository"
	"github.com/smallbiznis/learnpay/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewCourseCache),
	fx.Provide(service.New),
)
