package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/audit"
	"github.com/smallbiznis/learnpay/internal/auth"
	"github.com/smallbiznis/learnpay/internal/authorization"
	"github.com/smallbiznis/learnpay/internal/catalog"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/config"
	"github.com/smallbiznis/learnpay/internal/coupon"
	"github.com/smallbiznis/learnpay/internal/enrollment"
	"github.com/smallbiznis/learnpay/internal/invoice"
	"github.com/smallbiznis/learnpay/internal/notification"
	"github.com/smallbiznis/learnpay/internal/observability"
	"github.com/smallbiznis/learnpay/internal/payment"
	"github.com/smallbiznis/learnpay/internal/pricing"
	"github.com/smallbiznis/learnpay/internal/ratelimit"
	"github.com/smallbiznis/learnpay/internal/server"
	"github.com/smallbiznis/learnpay/internal/user"
	"github.com/smallbiznis/learnpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Core dependencies for API
		auth.Module,
		authorization.Module,
		ratelimit.Module,
		user.Module,
		catalog.Module,
		coupon.Module,
		pricing.Module,
		enrollment.Module,
		invoice.Module,
		audit.Module,
		notification.Module,
		payment.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
