package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/learnpay/internal/audit/domain"
	"github.com/smallbiznis/learnpay/internal/auth"
	"github.com/smallbiznis/learnpay/internal/authorization"
	"github.com/smallbiznis/learnpay/internal/config"
	coupondomain "github.com/smallbiznis/learnpay/internal/coupon/domain"
	invoicedomain "github.com/smallbiznis/learnpay/internal/invoice/domain"
	"github.com/smallbiznis/learnpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/learnpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/learnpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/learnpay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	validate        *validator.Validate
	tokens          *auth.Tokens
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	paymentSvc      paymentdomain.Service
	webhookSvc      paymentdomain.WebhookService
	couponSvc       coupondomain.Service
	invoiceSvc      invoicedomain.Service
	checkoutLimiter *ratelimit.CheckoutLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Tokens          *auth.Tokens
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	PaymentSvc      paymentdomain.Service
	WebhookSvc      paymentdomain.WebhookService
	CouponSvc       coupondomain.Service
	InvoiceSvc      invoicedomain.Service
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		validate:        newValidator(),
		tokens:          p.Tokens,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		paymentSvc:      p.PaymentSvc,
		webhookSvc:      p.WebhookSvc,
		couponSvc:       p.CouponSvc,
		invoiceSvc:      p.InvoiceSvc,
		checkoutLimiter: p.CheckoutLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	payments := s.engine.Group("/payments")

	// Gateways authenticate with signatures, not user tokens.
	payments.POST("/webhooks/:gatewayKind", s.HandlePaymentWebhook)

	user := payments.Group("", s.AuthRequired())
	{
		user.POST("/initiate", s.CheckoutRateLimit(ratelimit.EndpointInitiate), s.InitiatePayment)
		user.POST("/confirm/:gatewayKind", s.ConfirmPayment)
		user.POST("/check-coupon", s.CheckoutRateLimit(ratelimit.EndpointCheckCoupon), s.CheckCoupon)
		user.GET("/my-payments", s.ListMyPayments)
		user.GET("/transaction/:transactionId", s.GetPaymentByTransaction)

		user.GET("/invoices", s.ListInvoices)
		user.GET("/invoices/number/:invoiceNumber", s.GetInvoiceByNumber)
		user.GET("/invoices/:id", s.GetInvoiceByID)
		user.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)
	}

	coupons := user.Group("/coupons")
	{
		coupons.POST("", s.RequirePermission(authorization.ObjectCoupon, authorization.ActionCouponCreate), s.CreateCoupon)
		coupons.GET("", s.RequirePermission(authorization.ObjectCoupon, authorization.ActionCouponView), s.ListCoupons)
		coupons.GET("/:id", s.RequirePermission(authorization.ObjectCoupon, authorization.ActionCouponView), s.GetCoupon)
		coupons.PATCH("/:id", s.RequirePermission(authorization.ObjectCoupon, authorization.ActionCouponUpdate), s.UpdateCoupon)
		coupons.DELETE("/:id", s.RequirePermission(authorization.ObjectCoupon, authorization.ActionCouponDelete), s.DeleteCoupon)
	}

	admin := user.Group("/admin")
	{
		admin.GET("/all", s.RequirePermission(authorization.ObjectPayment, authorization.ActionPaymentViewAll), s.ListAllPayments)
		admin.POST("/refund/:paymentId", s.RequirePermission(authorization.ObjectPayment, authorization.ActionPaymentRefund), s.RefundPayment)
		admin.GET("/audit-logs", s.RequirePermission(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	}
}
