package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/platform/awssecrets"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/opensearch"
	"github.com/valyc0/fraudM/internal/platform/retry"
	"github.com/valyc0/fraudM/internal/platform/sqlstore"
	"github.com/valyc0/fraudM/internal/repos"
)

type credentialSource interface {
	Credentials(ctx context.Context, secretID string) (awssecrets.Credentials, error)
}

var (
	connectOpenSearch = opensearch.Connect
	connectSQL        = sqlstore.Connect
	newSecretsClient  = func(ctx context.Context, log *logger.Logger) (credentialSource, error) {
		return awssecrets.NewClient(ctx, log)
	}
)

type StoreBootstrapErrorCode string

const (
	StoreBootstrapErrorInvalidBackend    StoreBootstrapErrorCode = "invalid_backend"
	StoreBootstrapErrorCredentialsFailed StoreBootstrapErrorCode = "credentials_failed"
	StoreBootstrapErrorConnectFailed     StoreBootstrapErrorCode = "connect_failed"
	StoreBootstrapErrorSchemaFailed      StoreBootstrapErrorCode = "schema_failed"
)

type StoreBootstrapError struct {
	Code    StoreBootstrapErrorCode
	Backend StoreBackend
	Cause   error
}

func (e *StoreBootstrapError) Error() string {
	if e == nil {
		return "rule store bootstrap failed"
	}
	return fmt.Sprintf("rule store bootstrap failed (code=%s backend=%q): %v", e.Code, e.Backend, e.Cause)
}

func (e *StoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// openRuleBackend connects to the configured store. A connection that
// cannot be established within the retry budget is reported as
// repos.ErrConnectionFailed.
func openRuleBackend(ctx context.Context, log *logger.Logger, cfg Config) (repos.RuleBackend, error) {
	cfg, err := applyStoreCredentials(ctx, log, cfg)
	if err != nil {
		return nil, &StoreBootstrapError{Code: StoreBootstrapErrorCredentialsFailed, Backend: cfg.StoreBackend, Cause: err}
	}

	log.Info("Selecting rule store backend", "backend", cfg.StoreBackend)
	switch cfg.StoreBackend {
	case StoreBackendOpenSearch:
		client, err := connectOpenSearch(ctx, log, cfg.OpenSearch)
		if err != nil {
			return nil, connectFailure(cfg.StoreBackend, err)
		}
		return repos.NewOpenSearchRuleRepo(client, log, cfg.StoreListLimit), nil
	case StoreBackendPostgres, StoreBackendSQLite:
		db, err := connectSQL(ctx, log, cfg.SQL)
		if err != nil {
			return nil, connectFailure(cfg.StoreBackend, err)
		}
		return repos.NewSQLRuleRepo(db, log, string(cfg.StoreBackend), cfg.StoreListLimit), nil
	default:
		return nil, &StoreBootstrapError{
			Code:    StoreBootstrapErrorInvalidBackend,
			Backend: cfg.StoreBackend,
			Cause:   fmt.Errorf("unsupported store backend %q", cfg.StoreBackend),
		}
	}
}

func connectFailure(backend StoreBackend, err error) error {
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		err = fmt.Errorf("%w: %w", repos.ErrConnectionFailed, err)
	}
	return &StoreBootstrapError{Code: StoreBootstrapErrorConnectFailed, Backend: backend, Cause: err}
}

func applyStoreCredentials(ctx context.Context, log *logger.Logger, cfg Config) (Config, error) {
	secretID := strings.TrimSpace(cfg.StoreCredentialsSecretID)
	if secretID == "" || cfg.StoreBackend == StoreBackendSQLite {
		return cfg, nil
	}
	src, err := newSecretsClient(ctx, log)
	if err != nil {
		return cfg, err
	}
	creds, err := src.Credentials(ctx, secretID)
	if err != nil {
		return cfg, err
	}
	switch cfg.StoreBackend {
	case StoreBackendOpenSearch:
		cfg.OpenSearch.Username = creds.Username
		cfg.OpenSearch.Password = creds.Password
	case StoreBackendPostgres:
		cfg.SQL.User = creds.Username
		cfg.SQL.Password = creds.Password
	}
	return cfg, nil
}

// initRuleStore connects, creates the schema when missing and opens gate.
// On failure the gate stays closed for the life of the process.
func initRuleStore(ctx context.Context, log *logger.Logger, cfg Config, gate *repos.GatedRuleRepo) (repos.RuleBackend, error) {
	metrics := observability.Current()
	metrics.SetStoreReady(false)

	backend, err := openRuleBackend(ctx, log, cfg)
	if err != nil {
		log.Error("Rule store unavailable", "backend", cfg.StoreBackend, "error", err)
		return nil, err
	}
	backend = instrumentRuleBackend(backend)

	if err := backend.EnsureSchema(ctx); err != nil {
		_ = backend.Close()
		err = &StoreBootstrapError{Code: StoreBootstrapErrorSchemaFailed, Backend: cfg.StoreBackend, Cause: err}
		log.Error("Rule store schema initialization failed", "backend", cfg.StoreBackend, "error", err)
		return nil, err
	}

	gate.Open(backend)
	metrics.SetStoreReady(true)
	log.Info("Rule store ready", "backend", backend.Name())
	return backend, nil
}
