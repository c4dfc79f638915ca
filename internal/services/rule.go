package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/platform/ctxutil"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/realtime/bus"
	"github.com/valyc0/fraudM/internal/repos"
	"github.com/valyc0/fraudM/internal/services/generator"
)

const (
	DefaultGeneratorTimeout = 60 * time.Second
	DefaultStoreTimeout     = 10 * time.Second
	DefaultHealthTimeout    = 5 * time.Second
	eventPublishTimeout     = 2 * time.Second
)

type CreateRuleInput struct {
	Name        *string
	Description string
	IsActive    *bool
	Tags        []string
}

// UpdateRuleInput carries the fields to change. A nil field is left as is.
// A description triggers artifact regeneration and a version bump.
type UpdateRuleInput struct {
	Name            *string
	Description     *string
	IsActive        *bool
	Tags            *[]string
	ExpectedVersion *int
}

type StatusChangeInput struct {
	Status            rules.Status
	ValidationResults map[string]interface{}
	Metrics           map[string]interface{}
}

type RuleService interface {
	Create(ctx context.Context, in CreateRuleInput) (*rules.Rule, error)
	Get(ctx context.Context, id string) (*rules.Rule, error)
	List(ctx context.Context) ([]*rules.Rule, error)
	Update(ctx context.Context, id string, in UpdateRuleInput) (*rules.Rule, error)
	Delete(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, in StatusChangeInput) (*rules.Rule, error)
	MarkDeployed(ctx context.Context, id string) (*rules.Rule, error)
	HealthCheck(ctx context.Context) HealthReport
}

type RuleServiceConfig struct {
	GeneratorTimeout time.Duration
	StoreTimeout     time.Duration
	HealthTimeout    time.Duration
}

type ruleService struct {
	repo   repos.RuleRepo
	gen    generator.Generator
	events bus.Bus
	log    *logger.Logger
	cfg    RuleServiceConfig
	now    func() time.Time
}

func NewRuleService(repo repos.RuleRepo, gen generator.Generator, events bus.Bus, baseLog *logger.Logger, cfg RuleServiceConfig) RuleService {
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = DefaultGeneratorTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if events == nil {
		events = bus.NewNoopBus()
	}
	return &ruleService{
		repo:   repo,
		gen:    gen,
		events: events,
		log:    baseLog.With("service", "RuleService"),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *ruleService) Create(ctx context.Context, in CreateRuleInput) (out *rules.Rule, err error) {
	ctx, end := observability.StartSpan(ctx, "rules.create")
	defer func() { end(err) }()

	desc, err := rules.NormalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}
	now := rules.Timestamp(s.now())
	name := rules.NormalizeName(in.Name, now)

	artifact, err := s.generate(ctx, "create", desc, name)
	if err != nil {
		return nil, err
	}

	rule := &rules.Rule{
		RuleID:      uuid.NewString(),
		Name:        name,
		Description: desc,
		Artifact:    artifact,
		Status:      rules.StatusCreated,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tags:        datatypes.JSONSlice[string](in.Tags),
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	out, err = s.repo.Store(sctx, rule)
	if err != nil {
		return nil, rules.Wrap(rules.KindStore, "create", err)
	}
	s.log.Info("Rule created", append(ctxutil.LogFields(ctx), "rule_id", out.RuleID, "name", out.Name)...)
	s.publish(ctx, rules.EventCreated, out.RuleID, out)
	return out, nil
}

func (s *ruleService) Get(ctx context.Context, id string) (*rules.Rule, error) {
	if err := checkID("get", id); err != nil {
		return nil, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	out, err := s.repo.Get(sctx, id)
	if err != nil {
		return nil, rules.Wrap(rules.KindStore, "get", err)
	}
	return out, nil
}

func (s *ruleService) List(ctx context.Context) ([]*rules.Rule, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	out, err := s.repo.List(sctx)
	if err != nil {
		return nil, rules.Wrap(rules.KindStore, "list", err)
	}
	return out, nil
}

func (s *ruleService) Update(ctx context.Context, id string, in UpdateRuleInput) (out *rules.Rule, err error) {
	const op = "update"
	ctx, end := observability.StartSpan(ctx, "rules.update", attribute.String("rule.id", id))
	defer func() { end(err) }()

	if err := checkID(op, id); err != nil {
		return nil, err
	}
	fields := rules.RuleFields{
		IsActive:        in.IsActive,
		Tags:            in.Tags,
		ExpectedVersion: in.ExpectedVersion,
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, rules.E(rules.KindValidation, op, "name must not be blank")
		}
		fields.Name = &name
	}

	if in.Description != nil {
		desc, err := rules.NormalizeDescription(*in.Description)
		if err != nil {
			return nil, err
		}
		cur, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if in.ExpectedVersion != nil && *in.ExpectedVersion != cur.Version {
			return nil, rules.E(rules.KindConflict, op, "version is %d, expected %d", cur.Version, *in.ExpectedVersion)
		}
		name := cur.Name
		if fields.Name != nil {
			name = *fields.Name
		}
		artifact, err := s.generate(ctx, op, desc, name)
		if err != nil {
			return nil, err
		}
		fields.Description = &desc
		fields.Artifact = &artifact
		// Regenerating is the way out of error; every other status stays.
		if cur.Status == rules.StatusError {
			created := rules.StatusCreated
			fields.Status = &created
			observability.Current().IncTransition(string(cur.Status), string(created))
		}
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	out, err = s.repo.Update(sctx, id, fields)
	if err != nil {
		return nil, rules.Wrap(rules.KindStore, op, err)
	}
	s.log.Info("Rule updated", append(ctxutil.LogFields(ctx),
		"rule_id", id,
		"version", out.Version,
		"regenerated", fields.Artifact != nil,
	)...)
	s.publish(ctx, rules.EventUpdated, id, out)
	return out, nil
}

func (s *ruleService) Delete(ctx context.Context, id string) error {
	if err := checkID("delete", id); err != nil {
		return err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.Delete(sctx, id); err != nil {
		return rules.Wrap(rules.KindStore, "delete", err)
	}
	s.log.Info("Rule deleted", append(ctxutil.LogFields(ctx), "rule_id", id)...)
	s.publish(ctx, rules.EventDeleted, id, nil)
	return nil
}

// ChangeStatus moves the rule along one edge of the lifecycle. Entering
// deployed goes through MarkDeployed.
func (s *ruleService) ChangeStatus(ctx context.Context, id string, in StatusChangeInput) (*rules.Rule, error) {
	const op = "change_status"
	if err := checkID(op, id); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, rules.E(rules.KindValidation, op, "unknown status %q", in.Status)
	}
	if in.Status == rules.StatusDeployed {
		return nil, rules.E(rules.KindInvalidTransition, op, "use the deploy action to enter %s", rules.StatusDeployed)
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rules.CanTransition(cur.Status, in.Status) {
		return nil, rules.E(rules.KindInvalidTransition, op, "%s -> %s is not allowed", cur.Status, in.Status)
	}
	out, err := s.transition(ctx, op, id, cur.Status, rules.StatusChange{
		To:                in.Status,
		ValidationResults: in.ValidationResults,
		Metrics:           in.Metrics,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rules.EventStatusChanged, id, out)
	return out, nil
}

// MarkDeployed accepts rules in deploying, or in inactive which passes
// through deploying first. Anything else is left untouched.
func (s *ruleService) MarkDeployed(ctx context.Context, id string) (out *rules.Rule, err error) {
	const op = "mark_deployed"
	ctx, end := observability.StartSpan(ctx, "rules.mark_deployed", attribute.String("rule.id", id))
	defer func() { end(err) }()

	if err := checkID(op, id); err != nil {
		return nil, err
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := cur.Status
	switch from {
	case rules.StatusDeploying:
	case rules.StatusInactive:
		if _, err := s.transition(ctx, op, id, from, rules.StatusChange{To: rules.StatusDeploying}); err != nil {
			return nil, err
		}
		from = rules.StatusDeploying
	default:
		return nil, rules.E(rules.KindInvalidTransition, op, "cannot deploy a rule in status %s", cur.Status)
	}
	out, err = s.transition(ctx, op, id, from, rules.StatusChange{To: rules.StatusDeployed})
	if err != nil {
		return nil, err
	}
	s.log.Info("Rule deployed", append(ctxutil.LogFields(ctx), "rule_id", id, "version", out.Version)...)
	s.publish(ctx, rules.EventDeployed, id, out)
	return out, nil
}

func (s *ruleService) transition(ctx context.Context, op, id string, from rules.Status, change rules.StatusChange) (*rules.Rule, error) {
	change.From = &from
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	out, err := s.repo.UpdateStatus(sctx, id, change)
	if err != nil {
		return nil, rules.Wrap(rules.KindStore, op, err)
	}
	observability.Current().IncTransition(string(from), string(change.To))
	s.log.Debug("Rule status changed", append(ctxutil.LogFields(ctx), "rule_id", id, "from", from, "to", change.To)...)
	return out, nil
}

func (s *ruleService) generate(ctx context.Context, op, desc, name string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GeneratorTimeout)
	defer cancel()
	artifact, err := s.gen.Generate(gctx, generator.Request{Description: desc, RuleName: name})
	if err != nil {
		s.log.Warn("Artifact generation failed", append(ctxutil.LogFields(ctx), "op", op, "generator", s.gen.Name(), "error", err)...)
		return "", &rules.Error{Kind: rules.KindGeneration, Op: op, Err: err}
	}
	return artifact, nil
}

func (s *ruleService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// publish never fails the caller; the write already happened.
func (s *ruleService) publish(ctx context.Context, typ rules.EventType, id string, r *rules.Rule) {
	ev := rules.NewEvent(typ, id, r, s.now())
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	err := s.events.Publish(pctx, ev)
	observability.Current().IncEvent(string(typ), err)
	if err != nil {
		s.log.Warn("Rule event publish failed", append(ctxutil.LogFields(ctx), "rule_id", id, "event", typ, "error", err)...)
	}
}

func checkID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return rules.E(rules.KindValidation, op, "rule id required")
	}
	return nil
}
