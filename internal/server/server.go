package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/flexwatch/internal/analytics"
	analyticsdomain "github.com/smallbiznis/flexwatch/internal/analytics/domain"
	appconfig "github.com/smallbiznis/flexwatch/internal/config"
	"github.com/smallbiznis/flexwatch/internal/migration"
	"github.com/smallbiznis/flexwatch/internal/observability"
	obsmetrics "github.com/smallbiznis/flexwatch/internal/observability/metrics"
	obstracing "github.com/smallbiznis/flexwatch/internal/observability/tracing"
	"github.com/smallbiznis/flexwatch/internal/policy"
	policyservice "github.com/smallbiznis/flexwatch/internal/policy/service"
	"github.com/smallbiznis/flexwatch/internal/snapshot"
	"github.com/smallbiznis/flexwatch/internal/snapshot/ingest"
)

var Module = fx.Module("http.server",
	observability.Module,
	migration.Module,
	snapshot.Module,
	policy.Module,
	analytics.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg appconfig.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine       *gin.Engine
	analyticsSvc analyticsdomain.Service
	policySvc    *policyservice.Service
	ingestWorker *ingest.Worker
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	AnalyticsSvc analyticsdomain.Service
	PolicySvc    *policyservice.Service
	IngestWorker *ingest.Worker
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		analyticsSvc: p.AnalyticsSvc,
		policySvc:    p.PolicySvc,
		ingestWorker: p.IngestWorker,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	usage := v1.Group("/usage")
	usage.GET("/aggregate", s.AggregateUsage)
	usage.GET("/overuse", s.DetectOveruse)
	usage.GET("/interval", s.EstimateInterval)
	usage.GET("/stats", s.FeatureStats)

	catalog := v1.Group("/catalog")
	catalog.GET("/features", s.ListFeatures)
	catalog.GET("/companies", s.ListCompanies)
	catalog.GET("/users", s.ListUsers)
	catalog.GET("/range", s.DateRange)

	v1.POST("/ingest/scan", s.TriggerScan)
	v1.POST("/policies/reload", s.ReloadPolicies)
}
