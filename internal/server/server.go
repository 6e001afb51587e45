package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/levy/internal/alert"
	"github.com/smallbiznis/levy/internal/audit"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	"github.com/smallbiznis/levy/internal/auth"
	"github.com/smallbiznis/levy/internal/auth/token"
	"github.com/smallbiznis/levy/internal/authorization"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/gateway"
	"github.com/smallbiznis/levy/internal/gateway/interactive"
	"github.com/smallbiznis/levy/internal/ledger"
	"github.com/smallbiznis/levy/internal/observability"
	obsmiddleware "github.com/smallbiznis/levy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/levy/internal/observability/metrics"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
	"github.com/smallbiznis/levy/internal/payment"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/internal/providers"
	"github.com/smallbiznis/levy/internal/ratelimit"
	"github.com/smallbiznis/levy/internal/receipt"
	receiptdomain "github.com/smallbiznis/levy/internal/receipt/domain"
	"github.com/smallbiznis/levy/internal/reconciliation"
	reconciliationdomain "github.com/smallbiznis/levy/internal/reconciliation/domain"
	"github.com/smallbiznis/levy/internal/revenue"
	revenuedomain "github.com/smallbiznis/levy/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	auth.Module,
	alert.Module,
	providers.Module,
	ratelimit.Module,
	gateway.Module,
	ledger.Module,
	revenue.Module,
	payment.Module,
	reconciliation.Module,
	receipt.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine            *gin.Engine
	cfg               config.Config
	clock             clock.Clock
	verifier          *token.Verifier
	authzSvc          authorization.Service
	auditSvc          auditdomain.Service
	revenueSvc        revenuedomain.Service
	paymentSvc        paymentdomain.Service
	reconciliationSvc reconciliationdomain.Service
	receiptSvc        receiptdomain.Service
	checkoutHub       *interactive.Hub
	gateways          *gateway.Registry
	verifyLimiter     *ratelimit.VerifyLimiter
	obsMetrics        *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	Clock             clock.Clock
	Verifier          *token.Verifier
	AuthzSvc          authorization.Service
	AuditSvc          auditdomain.Service
	RevenueSvc        revenuedomain.Service
	PaymentSvc        paymentdomain.Service
	ReconciliationSvc reconciliationdomain.Service
	ReceiptSvc        receiptdomain.Service
	CheckoutHub       *interactive.Hub
	Gateways          *gateway.Registry        `optional:"true"`
	VerifyLimiter     *ratelimit.VerifyLimiter `optional:"true"`
	ObsMetrics        *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		clock:             p.Clock,
		verifier:          p.Verifier,
		authzSvc:          p.AuthzSvc,
		auditSvc:          p.AuditSvc,
		revenueSvc:        p.RevenueSvc,
		paymentSvc:        p.PaymentSvc,
		reconciliationSvc: p.ReconciliationSvc,
		receiptSvc:        p.ReceiptSvc,
		checkoutHub:       p.CheckoutHub,
		gateways:          p.Gateways,
		verifyLimiter:     p.VerifyLimiter,
		obsMetrics:        p.ObsMetrics,
	}
	if svc.clock == nil {
		svc.clock = clock.SystemClock{}
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.AuthRequired())

	// -------- Revenue types --------
	api.GET("/revenue-types", s.authorize(authorization.ObjectRevenue, authorization.ActionRevenueView), s.ListRevenueTypes)
	api.GET("/revenue-types/:id/periods", s.authorize(authorization.ObjectRevenue, authorization.ActionRevenueView), s.ListPeriods)

	// -------- Payments --------
	api.POST("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.RecordPayment)
	api.POST("/payments/checkout", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.Checkout)
	api.GET("/payments", s.ListPayments)
	api.GET("/payments/user", s.ListUserPayments)
	api.POST("/payments/intents/:token/resolve", s.authorize(authorization.ObjectPaymentIntent, authorization.ActionIntentResolve), s.ResolveIntent)

	// -------- Reconciliation --------
	api.GET("/payments/verify/:id", s.authorize(authorization.ObjectReconciliation, authorization.ActionReconciliationRun), s.VerifyRateLimit(), s.VerifyPayment)
	api.POST("/payments/verify", s.authorize(authorization.ObjectReconciliation, authorization.ActionReconciliationRun), s.VerifyRateLimit(), s.VerifyPayments)

	api.GET("/payments/:id", s.GetPayment)
	api.GET("/payments/:id/receipt", s.GetPaymentReceipt)

	// -------- Interactive checkout --------
	api.GET("/checkouts", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.ListCheckouts)
	api.POST("/checkouts/:token/approve", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.ApproveCheckout)
	api.POST("/checkouts/:token/cancel", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.CancelCheckout)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
