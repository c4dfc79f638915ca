package repos

import (
	"context"
	"sync/atomic"

	"github.com/valyc0/fraudM/internal/domain/rules"
)

type repoHolder struct {
	repo RuleRepo
}

// GatedRuleRepo forwards to the repository installed by Open. Until then
// every call fails with rules.KindNotReady.
type GatedRuleRepo struct {
	inner atomic.Pointer[repoHolder]
}

func NewGatedRuleRepo() *GatedRuleRepo {
	return &GatedRuleRepo{}
}

// Open installs repo and opens the gate. Later calls replace it.
func (g *GatedRuleRepo) Open(repo RuleRepo) {
	if repo == nil {
		g.inner.Store(nil)
		return
	}
	g.inner.Store(&repoHolder{repo: repo})
}

func (g *GatedRuleRepo) Ready() bool {
	return g.inner.Load() != nil
}

func (g *GatedRuleRepo) current(op string) (RuleRepo, error) {
	h := g.inner.Load()
	if h == nil {
		return nil, rules.E(rules.KindNotReady, op, "rule store not initialized")
	}
	return h.repo, nil
}

func (g *GatedRuleRepo) Store(ctx context.Context, rule *rules.Rule) (*rules.Rule, error) {
	repo, err := g.current("store")
	if err != nil {
		return nil, err
	}
	return repo.Store(ctx, rule)
}

func (g *GatedRuleRepo) Get(ctx context.Context, id string) (*rules.Rule, error) {
	repo, err := g.current("get")
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (g *GatedRuleRepo) List(ctx context.Context) ([]*rules.Rule, error) {
	repo, err := g.current("list")
	if err != nil {
		return nil, err
	}
	return repo.List(ctx)
}

func (g *GatedRuleRepo) Update(ctx context.Context, id string, fields rules.RuleFields) (*rules.Rule, error) {
	repo, err := g.current("update")
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, id, fields)
}

func (g *GatedRuleRepo) UpdateStatus(ctx context.Context, id string, change rules.StatusChange) (*rules.Rule, error) {
	repo, err := g.current("update_status")
	if err != nil {
		return nil, err
	}
	return repo.UpdateStatus(ctx, id, change)
}

func (g *GatedRuleRepo) Delete(ctx context.Context, id string) error {
	repo, err := g.current("delete")
	if err != nil {
		return err
	}
	return repo.Delete(ctx, id)
}

func (g *GatedRuleRepo) Ping(ctx context.Context) error {
	repo, err := g.current("ping")
	if err != nil {
		return err
	}
	return repo.Ping(ctx)
}
