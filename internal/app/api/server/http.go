package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/agentbilling/docs"
	"github.com/fatflowers/agentbilling/internal/app/api/handlers"
	mw "github.com/fatflowers/agentbilling/internal/app/api/middleware"
	"github.com/fatflowers/agentbilling/internal/app/service/catalog"
	"github.com/fatflowers/agentbilling/internal/app/service/roles"
	"github.com/fatflowers/agentbilling/internal/app/service/statistics"
	subsvc "github.com/fatflowers/agentbilling/internal/app/service/subscription"
	wh "github.com/fatflowers/agentbilling/internal/app/service/webhook_handler"
	cfgpkg "github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/metrics"
)

const (
	StripeWebhookPath = "/api/v1/billing/webhook/stripe"
	// LegacyStripeWebhookPath is the endpoint existing Stripe dashboards are configured with.
	LegacyStripeWebhookPath = "/functions/v1/stripe-webhook"
)

type routeDeps struct {
	fx.In

	Log        *zap.SugaredLogger
	Cfg        *cfgpkg.Config
	Webhook    *wh.Handler
	Subs       *subsvc.Service
	Reconciler *roles.Reconciler
	Catalog    *catalog.Service
	Stats      *statistics.Service
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	log, cfg := d.Log, d.Cfg

	// Prometheus metrics on a separate listener
	if cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{Subsystem: metrics.Subsystem, Logger: log})
		p.SetListenAddressWithRouter(cfg.MetricsAddr, gin.New())
		p.Use(r)
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Stripe calls both paths
	handlers.RegisterStripeWebhookRoutes(pub, StripeWebhookPath, d.Webhook, log)
	handlers.RegisterStripeWebhookRoutes(pub, LegacyStripeWebhookPath, d.Webhook, log)

	if cfg.Admin.JWTSecret == "" {
		log.Warnw("admin.jwt_secret is empty, admin API disabled")
		return
	}
	admin := r.Group("/api/v1/admin")
	admin.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log), mw.AdminAuthMiddleware(cfg.Admin.JWTSecret, log))
	handlers.RegisterAdminRoutes(admin, handlers.AdminDeps{
		Subscriptions: d.Subs,
		Roles:         d.Reconciler,
		Plans:         d.Catalog,
		Resync:        d.Webhook,
		Statistics:    d.Stats,
		BaseRole:      cfg.Ranking().Base(),
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
