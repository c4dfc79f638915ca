package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/valyc0/fraudM/internal/http/handlers"
	httpMW "github.com/valyc0/fraudM/internal/http/middleware"
	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	RuleHandler    *httpH.RuleHandler
	HealthHandler  *httpH.HealthHandler
	AuthMiddleware *httpMW.AuthMiddleware
	Metrics        *observability.Metrics

	CORSOrigins []string
	Tracing     bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		r.Use(otelgin.Middleware("rulemanager"))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	rulesGroup := r.Group("/rules")
	{
		if cfg.AuthMiddleware != nil {
			rulesGroup.Use(cfg.AuthMiddleware.RequireAuth())
		}
		if cfg.RuleHandler != nil {
			rulesGroup.POST("", cfg.RuleHandler.CreateRule)
			rulesGroup.GET("", cfg.RuleHandler.ListRules)
			rulesGroup.GET("/:id", cfg.RuleHandler.GetRule)
			rulesGroup.PUT("/:id", cfg.RuleHandler.UpdateRule)
			rulesGroup.DELETE("/:id", cfg.RuleHandler.DeleteRule)
			rulesGroup.POST("/:id/deploy", cfg.RuleHandler.DeployRule)
			rulesGroup.POST("/:id/status", cfg.RuleHandler.ChangeStatus)
		}
	}

	return r
}
