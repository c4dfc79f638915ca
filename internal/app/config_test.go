package app

import (
	"errors"
	"testing"
	"time"

	"github.com/valyc0/fraudM/internal/platform/opensearch"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("GENERATOR_PROVIDER", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("GENERATOR_ARCHIVE_DIR", "/var/lib/rules/archive")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreBackend != StoreBackendOpenSearch {
		t.Fatalf("StoreBackend: want=%q got=%q", StoreBackendOpenSearch, cfg.StoreBackend)
	}
	if cfg.OpenSearch.Index != "rules" || cfg.OpenSearch.ConnectAttempts != 5 || cfg.OpenSearch.ConnectDelay != 5*time.Second {
		t.Fatalf("OpenSearch: got=%+v", cfg.OpenSearch)
	}
	if cfg.GeneratorProvider != GeneratorProviderOpenAI || cfg.GeneratorTimeout != 60*time.Second {
		t.Fatalf("generator: provider=%q timeout=%s", cfg.GeneratorProvider, cfg.GeneratorTimeout)
	}
	if cfg.GeneratorArchiveDir != "/var/lib/rules/archive" {
		t.Fatalf("GeneratorArchiveDir: got=%q", cfg.GeneratorArchiveDir)
	}
	if cfg.StoreTimeout != 10*time.Second || cfg.StoreListLimit != 100 {
		t.Fatalf("store: timeout=%s limit=%d", cfg.StoreTimeout, cfg.StoreListLimit)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins: got=%q", cfg.CORSOrigins)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("Addr: got=%q", cfg.Addr())
	}
}

func TestLoadConfigPicksGeminiWhenKeySet(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("GENERATOR_PROVIDER", "")
	t.Setenv("GEMINI_API_KEY", "k")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GeneratorProvider != GeneratorProviderGemini {
		t.Fatalf("GeneratorProvider: want=%q got=%q", GeneratorProviderGemini, cfg.GeneratorProvider)
	}
	if cfg.SQL.SQLitePath != "rules.db" {
		t.Fatalf("SQLitePath: got=%q", cfg.SQL.SQLitePath)
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")
	_, err := LoadConfig()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Code != ConfigErrorInvalidStoreBackend {
		t.Fatalf("LoadConfig: want invalid backend got=%v", err)
	}
}

func TestLoadConfigWrapsStoreConfigError(t *testing.T) {
	t.Setenv("STORE_BACKEND", "opensearch")
	t.Setenv("OPENSEARCH_PORT", "70000")
	_, err := LoadConfig()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Code != ConfigErrorInvalidStoreConfig {
		t.Fatalf("LoadConfig: want store config error got=%v", err)
	}
	var oce *opensearch.ConfigError
	if !errors.As(err, &oce) || oce.Code != opensearch.ConfigErrorInvalidPort {
		t.Fatalf("cause: got=%v", err)
	}
}

func TestValidateRejectsNonPositiveValues(t *testing.T) {
	cases := []struct {
		mutate func(*Config)
		code   ConfigErrorCode
	}{
		{func(c *Config) { c.StoreTimeout = 0 }, ConfigErrorInvalidTimeout},
		{func(c *Config) { c.GeneratorTimeout = -time.Second }, ConfigErrorInvalidTimeout},
		{func(c *Config) { c.StoreListLimit = 0 }, ConfigErrorInvalidListLimit},
		{func(c *Config) { c.GeneratorProvider = "" }, ConfigErrorInvalidProvider},
	}
	for _, tc := range cases {
		cfg := sqliteConfig("validate")
		tc.mutate(&cfg)
		var ce *ConfigError
		if err := cfg.Validate(); !errors.As(err, &ce) || ce.Code != tc.code {
			t.Fatalf("Validate: want code=%s got=%v", tc.code, err)
		}
	}
}
