package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gigvault/escrow/internal/account"
	"github.com/gigvault/escrow/internal/config"
	"github.com/gigvault/escrow/internal/gateway"
	"github.com/gigvault/escrow/internal/observability"
	obsmiddleware "github.com/gigvault/escrow/internal/observability/logger"
	obsmetrics "github.com/gigvault/escrow/internal/observability/metrics"
	"github.com/gigvault/escrow/internal/payment"
	paymentdomain "github.com/gigvault/escrow/internal/payment/domain"
	"github.com/gigvault/escrow/internal/payout"
	payoutdomain "github.com/gigvault/escrow/internal/payout/domain"
	"github.com/gigvault/escrow/internal/project"
	"github.com/gigvault/escrow/internal/transaction"
	"github.com/gigvault/escrow/internal/wallet"
	"github.com/gigvault/escrow/internal/webhook"
	webhookdomain "github.com/gigvault/escrow/internal/webhook/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	project.Module,
	wallet.Module,
	account.Module,
	transaction.Module,
	gateway.Module,
	payment.Module,
	payout.Module,
	webhook.Module,
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

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	paymentSvc paymentdomain.Service
	payoutSvc  payoutdomain.Service
	webhooks   webhookdomain.Processor
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	PaymentSvc paymentdomain.Service
	PayoutSvc  payoutdomain.Service
	Webhooks   webhookdomain.Processor
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		paymentSvc: p.PaymentSvc,
		payoutSvc:  p.PayoutSvc,
		webhooks:   p.Webhooks,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payments --------
	api.POST("/payments/wallet", s.CreateWalletPayment)
	api.POST("/payments/orders", s.CreateServicePaymentOrder)
	api.POST("/payments/verify", s.ProcessServicePayment)
	api.GET("/transactions/:id", s.GetTransaction)

	// -------- Payouts --------
	api.GET("/payouts/:id", s.GetPayout)
	api.GET("/freelancers/:id/payouts", s.ListFreelancerPayouts)

	// -------- Gateway webhooks --------
	api.POST("/webhooks/gateway", s.HandleGatewayWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")
	admin.Use(s.AdminRequired())

	admin.POST("/payouts/:transactionId/release", s.ReleasePayment)
}
