package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/valyc0/fraudM/internal/http"
	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/repos"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *http.Server
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error

	mu       sync.Mutex
	backend  repos.RuleBackend
	initErr  error
	initDone chan struct{}
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds every collaborator. The rule store is not contacted until
// Start; until then rule operations fail with NotReady.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "rulemanager",
		Environment: cfg.LogMode,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, err
	}
	reposet := wireRepos(log)
	serviceset := wireServices(log, cfg, reposet, clients)
	handlerset := wireHandlers(log, serviceset)
	middleware := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Server:       server,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
		initDone:     make(chan struct{}),
	}, nil
}

// Start initializes the rule store in the background.
func (a *App) Start() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		backend, err := initRuleStore(ctx, a.Log, a.Cfg, a.Repos.Rules)
		a.mu.Lock()
		a.backend = backend
		a.initErr = err
		a.mu.Unlock()
		close(a.initDone)
	}()
}

// WaitReady blocks until store initialization finished and returns its
// outcome.
func (a *App) WaitReady(ctx context.Context) error {
	select {
	case <-a.initDone:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Serving HTTP", "addr", a.Cfg.Addr())
	return a.Server.Run(ctx, a.Cfg.Addr())
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	a.Repos.Rules.Open(nil)
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.Log.Warn("Closing rule store failed", "error", err)
		}
		a.backend = nil
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := a.otelShutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.Log.Warn("Tracer shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}

// InitSchema connects to the configured store and creates the rules
// collection when it is missing.
func InitSchema(ctx context.Context, log *logger.Logger, cfg Config) error {
	gate := repos.NewGatedRuleRepo()
	backend, err := initRuleStore(ctx, log, cfg, gate)
	if err != nil {
		return err
	}
	return backend.Close()
}
