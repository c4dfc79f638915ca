package app

import (
	"context"
	"time"

	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/repos"
)

type instrumentedRuleBackend struct {
	inner   repos.RuleBackend
	metrics *observability.Metrics
}

func instrumentRuleBackend(inner repos.RuleBackend) repos.RuleBackend {
	if inner == nil {
		return nil
	}
	return &instrumentedRuleBackend{
		inner:   inner,
		metrics: observability.Current(),
	}
}

func (s *instrumentedRuleBackend) Name() string { return s.inner.Name() }

func (s *instrumentedRuleBackend) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	err := s.inner.EnsureSchema(ctx)
	s.observe("ensure_schema", err, time.Since(start))
	return err
}

func (s *instrumentedRuleBackend) Store(ctx context.Context, rule *rules.Rule) (*rules.Rule, error) {
	start := time.Now()
	out, err := s.inner.Store(ctx, rule)
	s.observe("store", err, time.Since(start))
	return out, err
}

func (s *instrumentedRuleBackend) Get(ctx context.Context, id string) (*rules.Rule, error) {
	start := time.Now()
	out, err := s.inner.Get(ctx, id)
	s.observe("get", err, time.Since(start))
	return out, err
}

func (s *instrumentedRuleBackend) List(ctx context.Context) ([]*rules.Rule, error) {
	start := time.Now()
	out, err := s.inner.List(ctx)
	s.observe("list", err, time.Since(start))
	return out, err
}

func (s *instrumentedRuleBackend) Update(ctx context.Context, id string, fields rules.RuleFields) (*rules.Rule, error) {
	start := time.Now()
	out, err := s.inner.Update(ctx, id, fields)
	s.observe("update", err, time.Since(start))
	return out, err
}

func (s *instrumentedRuleBackend) UpdateStatus(ctx context.Context, id string, change rules.StatusChange) (*rules.Rule, error) {
	start := time.Now()
	out, err := s.inner.UpdateStatus(ctx, id, change)
	s.observe("update_status", err, time.Since(start))
	return out, err
}

func (s *instrumentedRuleBackend) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.observe("delete", err, time.Since(start))
	return err
}

func (s *instrumentedRuleBackend) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.observe("ping", err, time.Since(start))
	return err
}

func (s *instrumentedRuleBackend) Close() error { return s.inner.Close() }

func (s *instrumentedRuleBackend) observe(operation string, err error, dur time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.ObserveStoreOp(s.inner.Name(), operation, err, dur)
}
