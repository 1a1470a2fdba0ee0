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
	"github.com/smallbiznis/learnpay/internal/migration"
	"github.com/smallbiznis/learnpay/internal/notification"
	"github.com/smallbiznis/learnpay/internal/observability"
	"github.com/smallbiznis/learnpay/internal/payment"
	"github.com/smallbiznis/learnpay/internal/pricing"
	"github.com/smallbiznis/learnpay/internal/ratelimit"
	"github.com/smallbiznis/learnpay/internal/scheduler"
	"github.com/smallbiznis/learnpay/internal/server"
	"github.com/smallbiznis/learnpay/internal/user"
	"github.com/smallbiznis/learnpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,

		// Functional Domains
		user.Module,
		catalog.Module,
		coupon.Module,
		pricing.Module,
		enrollment.Module,
		invoice.Module,
		audit.Module,
		notification.Module,
		payment.Module,
		auth.Module,
		authorization.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
