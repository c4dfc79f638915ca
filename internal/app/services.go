package app

import (
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/services"
)

type Services struct {
	Rules services.RuleService
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")
	return Services{
		Rules: services.NewRuleService(reposet.Rules, clients.Generator, clients.Events, log, services.RuleServiceConfig{
			GeneratorTimeout: cfg.GeneratorTimeout,
			StoreTimeout:     cfg.StoreTimeout,
		}),
	}
}
