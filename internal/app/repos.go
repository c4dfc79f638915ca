package app

import (
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/repos"
)

type Repos struct {
	// Rules answers NotReady until the background store initialization
	// installs a backend.
	Rules *repos.GatedRuleRepo
}

func wireRepos(log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Rules: repos.NewGatedRuleRepo(),
	}
}
