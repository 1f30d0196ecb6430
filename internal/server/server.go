package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/affiliate/internal/affiliate"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/clearing"
	clearingdomain "github.com/smallbiznis/affiliate/internal/clearing/domain"
	"github.com/smallbiznis/affiliate/internal/config"
	"github.com/smallbiznis/affiliate/internal/conversion"
	convdomain "github.com/smallbiznis/affiliate/internal/conversion/domain"
	"github.com/smallbiznis/affiliate/internal/observability"
	obsmiddleware "github.com/smallbiznis/affiliate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/affiliate/internal/observability/metrics"
	"github.com/smallbiznis/affiliate/internal/payout"
	payoutdomain "github.com/smallbiznis/affiliate/internal/payout/domain"
	"github.com/smallbiznis/affiliate/internal/providers/email"
	"github.com/smallbiznis/affiliate/internal/ratelimit"
	"github.com/smallbiznis/affiliate/internal/tier"
	tierdomain "github.com/smallbiznis/affiliate/internal/tier/domain"
	"github.com/smallbiznis/affiliate/internal/tracking"
	trackingdomain "github.com/smallbiznis/affiliate/internal/tracking/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	affiliate.Module,
	tracking.Module,
	conversion.Module,
	clearing.Module,
	tier.Module,
	payout.Module,
	email.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
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
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, gatherer)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	affiliateSvc  affdomain.Service
	trackingSvc   trackingdomain.Service
	conversionSvc convdomain.Service
	clearingSvc   clearingdomain.Service
	tierSvc       tierdomain.Service
	payoutSvc     payoutdomain.Service

	obsMetrics   *obsmetrics.Metrics
	clickLimiter *ratelimit.ClickLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	AffiliateSvc  affdomain.Service
	TrackingSvc   trackingdomain.Service
	ConversionSvc convdomain.Service
	ClearingSvc   clearingdomain.Service
	TierSvc       tierdomain.Service
	PayoutSvc     payoutdomain.Service

	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
	ClickLimiter *ratelimit.ClickLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		affiliateSvc:  p.AffiliateSvc,
		trackingSvc:   p.TrackingSvc,
		conversionSvc: p.ConversionSvc,
		clearingSvc:   p.ClearingSvc,
		tierSvc:       p.TierSvc,
		payoutSvc:     p.PayoutSvc,
		obsMetrics:    p.ObsMetrics,
		clickLimiter:  p.ClickLimiter,
	}

	svc.registerPublicRoutes()
	svc.registerAffiliateRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	s.engine.GET("/r/:code", s.ClickRateLimit(), s.RedirectClick)
	s.engine.POST("/webhooks/orders", s.HandleOrderWebhook)
}

func (s *Server) registerAffiliateRoutes() {
	me := s.engine.Group("/api/v1/affiliates/me", s.AffiliateRequired())

	me.GET("/dashboard", s.GetDashboard)
	me.GET("/payouts", s.ListPayouts)
	me.POST("/payouts", s.RequestPayout)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin")

	admin.POST("/affiliates", s.EnrollAffiliate)
	admin.GET("/affiliates/:id", s.GetAffiliate)
	admin.POST("/affiliates/:id/deactivate", s.DeactivateAffiliate)
	admin.GET("/affiliates/:id/conversions", s.ListConversions)

	admin.GET("/conversions/:id", s.GetConversion)
	admin.POST("/conversions/:id/void", s.VoidConversion)

	admin.POST("/payouts/:id/complete", s.CompletePayout)
	admin.POST("/payouts/:id/fail", s.FailPayout)
}
