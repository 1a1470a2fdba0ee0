package invoice

import (
	"github.com/smallbiznis/learnpay/internal/config"
	"github.com/smallbiznis/learnpay/internal/invoice/render"
	"github.com/smallbiznis/learnpay/internal/invoice/repository"
	"github.com/smallbiznis/learnpay/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) render.Renderer {
		return render.NewPDFRenderer(render.Options{SellerName: cfg.AppName, SellerEmail: cfg.SMTP.From})
	}),
	fx.Provide(service.New),
)
