package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/internal/audit"
	auditdomain "github.com/datavista/metrica/internal/audit/domain"
	"github.com/datavista/metrica/internal/authorization"
	"github.com/datavista/metrica/internal/catalog"
	catalogdomain "github.com/datavista/metrica/internal/catalog/domain"
	"github.com/datavista/metrica/internal/config"
	"github.com/datavista/metrica/internal/expr"
	"github.com/datavista/metrica/internal/metric"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	"github.com/datavista/metrica/internal/observability"
	obsmiddleware "github.com/datavista/metrica/internal/observability/logger"
	obsmetrics "github.com/datavista/metrica/internal/observability/metrics"
	obstracing "github.com/datavista/metrica/internal/observability/tracing"
	"github.com/datavista/metrica/internal/usage"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	expr.Module,
	metric.Module,
	usage.Module,
	catalog.Module,
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
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	metricSvc  metricdomain.Service
	usageSvc   usagedomain.Service
	catalogSvc catalogdomain.Service
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	MetricSvc  metricdomain.Service
	UsageSvc   usagedomain.Service
	CatalogSvc catalogdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		metricSvc:  p.MetricSvc,
		usageSvc:   p.UsageSvc,
		catalogSvc: p.CatalogSvc,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAdminRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.ActorRequired(), s.OrgContext())

	metrics := admin.Group("/metrics")
	metrics.POST("", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricCreate), s.CreateMetric)
	metrics.GET("", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricView), s.ListMetrics)
	metrics.GET("/:id", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricView), s.GetMetricByID)
	metrics.PATCH("/:id", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricUpdate), s.UpdateMetric)
	metrics.DELETE("/:id", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricDelete), s.DeleteMetric)
	metrics.POST("/:id/publish", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricPublish), s.PublishMetric)
	metrics.POST("/:id/archive", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricArchive), s.ArchiveMetric)
	metrics.GET("/:id/usages", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageView), s.ListMetricUsages)

	roles := admin.Group("/roles")
	roles.POST("", s.authorizeOrgAction(authorization.ObjectRole, authorization.ActionRoleManage), s.GrantRole)
	roles.DELETE("", s.authorizeOrgAction(authorization.ObjectRole, authorization.ActionRoleManage), s.RevokeRole)

	admin.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ActorRequired(), s.OrgContext())

	cat := api.Group("/catalog")
	cat.GET("/metrics", s.authorizeOrgAction(authorization.ObjectMetric, authorization.ActionMetricView), s.ListSelectableMetrics)
	cat.POST("/bindings", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageBind), s.BindMetric)
	cat.DELETE("/bindings", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageBind), s.UnbindMetric)
}
