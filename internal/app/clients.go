package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/valyc0/fraudM/internal/platform/gemini"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/openai"
	"github.com/valyc0/fraudM/internal/realtime/bus"
	"github.com/valyc0/fraudM/internal/services/generator"
)

var (
	newOpenAIClient = func(_ context.Context, log *logger.Logger, cfg Config) (generator.LLM, error) {
		return openai.NewClient(log, cfg.OpenAI)
	}
	newGeminiClient = func(ctx context.Context, log *logger.Logger, cfg Config) (generator.LLM, error) {
		return gemini.NewClient(ctx, log, cfg.Gemini)
	}
	newRedisBus = bus.NewRedisBus
)

type Clients struct {
	Generator generator.Generator
	Events    bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	gen, err := buildGenerator(ctx, log, cfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init generator: %w", err)
	}

	// Redis
	events := bus.NewNoopBus()
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := newRedisBus(ctx, log, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		events = b
	}

	return Clients{Generator: gen, Events: events}, nil
}

func buildGenerator(ctx context.Context, log *logger.Logger, cfg Config) (generator.Generator, error) {
	profiles, err := generator.LoadProfiles(cfg.GeneratorProfilesFile)
	if err != nil {
		return nil, err
	}
	profile, err := generator.Select(profiles, cfg.GeneratorProfile)
	if err != nil {
		return nil, err
	}

	var llm generator.LLM
	switch cfg.GeneratorProvider {
	case GeneratorProviderOpenAI:
		llm, err = newOpenAIClient(ctx, log, cfg)
	case GeneratorProviderGemini:
		llm, err = newGeminiClient(ctx, log, cfg)
	default:
		err = fmt.Errorf("unsupported generator provider %q", cfg.GeneratorProvider)
	}
	if err != nil {
		return nil, err
	}
	var opts []generator.Option
	if dir := strings.TrimSpace(cfg.GeneratorArchiveDir); dir != "" {
		opts = append(opts, generator.WithArchive(generator.NewArchive(dir)))
	}
	log.Info("Generator configured",
		"provider", cfg.GeneratorProvider,
		"profile", profile.Name,
		"archive_dir", cfg.GeneratorArchiveDir,
	)
	return generator.New(log, cfg.GeneratorProvider, llm, profile, opts...)
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Events != nil {
		_ = c.Events.Close()
	}
}
