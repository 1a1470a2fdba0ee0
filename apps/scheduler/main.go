package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/audit"
	"github.com/smallbiznis/learnpay/internal/catalog"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/config"
	"github.com/smallbiznis/learnpay/internal/coupon"
	"github.com/smallbiznis/learnpay/internal/enrollment"
	"github.com/smallbiznis/learnpay/internal/invoice"
	"github.com/smallbiznis/learnpay/internal/observability"
	"github.com/smallbiznis/learnpay/internal/payment"
	"github.com/smallbiznis/learnpay/internal/pricing"
	"github.com/smallbiznis/learnpay/internal/ratelimit"
	"github.com/smallbiznis/learnpay/internal/scheduler"
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
		ratelimit.Module,

		// Domain services required by scheduler
		scheduler.Module,
		payment.Module,

		// Transitive dependencies (payment needs catalog, coupons etc)
		user.Module,
		catalog.Module,
		coupon.Module,
		pricing.Module,
		enrollment.Module,
		invoice.Module,
		audit.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
