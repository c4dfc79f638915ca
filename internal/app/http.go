package app

import (
	"github.com/valyc0/fraudM/internal/http"
	httpH "github.com/valyc0/fraudM/internal/http/handlers"
	httpMW "github.com/valyc0/fraudM/internal/http/middleware"
	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health *httpH.HealthHandler
	Rule   *httpH.RuleHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(services.Rules),
		Rule:   httpH.NewRuleHandler(services.Rules),
	}
}

// wireMiddleware leaves auth off when no API secret is configured.
func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.APIJWTSecret == "" {
		log.Warn("API_JWT_SECRET not set; /rules is unauthenticated")
		return Middleware{}
	}
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.APIJWTSecret),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:            log,
		RuleHandler:    handlers.Rule,
		HealthHandler:  handlers.Health,
		AuthMiddleware: middleware.Auth,
		Metrics:        metrics,
		CORSOrigins:    cfg.CORSOrigins,
		Tracing:        cfg.Tracing,
	})
}
