package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/valyc0/fraudM/internal/platform/ctxutil"
)

const (
	Healthy   = "healthy"
	Unhealthy = "unhealthy"
)

type HealthReport struct {
	Generator string `json:"generator"`
	Store     string `json:"store"`
}

func (h HealthReport) OK() bool {
	return h.Generator == Healthy && h.Store == Healthy
}

// HealthCheck checks the generator and the store concurrently. It never
// mutates state.
func (s *ruleService) HealthCheck(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()

	report := HealthReport{Generator: Unhealthy, Store: Unhealthy}
	var g errgroup.Group
	g.Go(func() error {
		if err := s.gen.Ping(ctx); err != nil {
			s.log.Warn("Generator health check failed", append(ctxutil.LogFields(ctx), "generator", s.gen.Name(), "error", err)...)
			return nil
		}
		report.Generator = Healthy
		return nil
	})
	g.Go(func() error {
		if err := s.repo.Ping(ctx); err != nil {
			s.log.Warn("Store health check failed", append(ctxutil.LogFields(ctx), "error", err)...)
			return nil
		}
		report.Store = Healthy
		return nil
	})
	_ = g.Wait()
	return report
}
