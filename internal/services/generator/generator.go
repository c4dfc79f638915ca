// Package generator turns a natural-language rule description into an
// artifact by prompting an LLM backend with a configured profile.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/platform/ctxutil"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/promptstyle"
)

var (
	ErrEmptyArtifact = errors.New("generator returned an empty artifact")
	ErrMissingMarker = errors.New("artifact is missing a required marker")
)

type Request struct {
	Description string
	RuleName    string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Ping(ctx context.Context) error
	Name() string
}

// LLM is the text completion contract shared by the openai and gemini
// clients.
type LLM interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	Ping(ctx context.Context) error
}

type llmGenerator struct {
	log      *logger.Logger
	provider string
	llm      LLM
	profile  *Profile
	archive  *Archive
}

type Option func(*llmGenerator)

// WithArchive saves every accepted artifact through a. A nil a disables it.
func WithArchive(a *Archive) Option {
	return func(g *llmGenerator) { g.archive = a }
}

func New(log *logger.Logger, provider string, llm LLM, profile *Profile, opts ...Option) (Generator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm backend required")
	}
	if profile == nil || profile.userTmpl == nil {
		return nil, fmt.Errorf("generator profile required")
	}
	g := &llmGenerator{
		log:      log.With("service", "Generator", "provider", provider, "profile", profile.Name),
		provider: provider,
		llm:      llm,
		profile:  profile,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *llmGenerator) Name() string { return g.provider + "/" + g.profile.Name }

func (g *llmGenerator) Ping(ctx context.Context) error {
	return g.llm.Ping(ctx)
}

func (g *llmGenerator) Generate(ctx context.Context, req Request) (out string, err error) {
	ctx, end := observability.StartSpan(ctx, "generator.generate",
		attribute.String("generator.provider", g.provider),
		attribute.String("generator.profile", g.profile.Name),
	)
	start := time.Now()
	defer func() {
		observability.Current().ObserveGeneration(g.provider, err, time.Since(start))
		end(err)
	}()

	user, err := g.profile.renderUser(req)
	if err != nil {
		return "", err
	}
	raw, err := g.llm.GenerateText(ctx, promptstyle.ApplySystem(g.profile.System, g.profile.Language), user)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", g.provider, err)
	}
	out = g.profile.format(StripFences(raw))
	if err := g.profile.check(out, req); err != nil {
		g.log.Warn("Rejected generated artifact",
			append(ctxutil.LogFields(ctx), "rule_name", req.RuleName, "error", err, "artifact_len", len(out))...)
		return "", err
	}
	g.log.Debug("Generated artifact",
		append(ctxutil.LogFields(ctx), "rule_name", req.RuleName, "artifact_len", len(out), "duration", time.Since(start))...)
	g.save(ctx, req, out)
	return out, nil
}

// save archives out. A failed write is logged and never fails generation.
func (g *llmGenerator) save(ctx context.Context, req Request, out string) {
	if g.archive == nil {
		return
	}
	path, err := g.archive.Save(g.profile, req, out)
	if err != nil {
		g.log.Warn("Failed to archive artifact", append(ctxutil.LogFields(ctx), "rule_name", req.RuleName, "error", err)...)
		return
	}
	g.log.Info("Archived artifact", append(ctxutil.LogFields(ctx), "rule_name", req.RuleName, "path", path)...)
}

// StripFences removes markdown code fence lines (``` with or without a
// language tag) and trims the result.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
