package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/valyc0/fraudM/internal/platform/envutil"
	"github.com/valyc0/fraudM/internal/platform/gemini"
	"github.com/valyc0/fraudM/internal/platform/openai"
	"github.com/valyc0/fraudM/internal/platform/opensearch"
	"github.com/valyc0/fraudM/internal/platform/sqlstore"
	"github.com/valyc0/fraudM/internal/realtime/bus"
	"github.com/valyc0/fraudM/internal/repos"
	"github.com/valyc0/fraudM/internal/services"
	"github.com/valyc0/fraudM/internal/services/generator"
)

type StoreBackend string

const (
	StoreBackendOpenSearch StoreBackend = "opensearch"
	StoreBackendPostgres   StoreBackend = "postgres"
	StoreBackendSQLite     StoreBackend = "sqlite"
)

const (
	GeneratorProviderOpenAI = "openai"
	GeneratorProviderGemini = "gemini"
)

type Config struct {
	Port    string
	LogMode string
	Version string

	StoreBackend             StoreBackend
	StoreTimeout             time.Duration
	StoreListLimit           int
	StoreCredentialsSecretID string
	OpenSearch               opensearch.Config
	SQL                      sqlstore.Config

	GeneratorProvider     string
	GeneratorProfile      string
	GeneratorProfilesFile string
	GeneratorArchiveDir   string
	GeneratorTimeout      time.Duration
	OpenAI                openai.Config
	Gemini                gemini.Config

	Redis bus.RedisConfig

	APIJWTSecret string
	CORSOrigins  []string
	Tracing      bool
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidStoreBackend ConfigErrorCode = "invalid_store_backend"
	ConfigErrorInvalidStoreConfig  ConfigErrorCode = "invalid_store_config"
	ConfigErrorInvalidProvider     ConfigErrorCode = "invalid_generator_provider"
	ConfigErrorInvalidTimeout      ConfigErrorCode = "invalid_timeout"
	ConfigErrorInvalidListLimit    ConfigErrorCode = "invalid_list_limit"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Field string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid config"
	}
	if e.Cause != nil {
		return fmt.Sprintf("invalid config (code=%s field=%s value=%q): %v", e.Code, e.Field, e.Value, e.Cause)
	}
	return fmt.Sprintf("invalid config (code=%s field=%s value=%q)", e.Code, e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// LoadConfig reads the process environment. Only the selected store
// backend's settings are resolved.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:                     envutil.String("PORT", "8080"),
		LogMode:                  envutil.String("LOG_MODE", "development"),
		Version:                  envutil.String("APP_VERSION", "dev"),
		StoreBackend:             StoreBackend(strings.ToLower(envutil.String("STORE_BACKEND", string(StoreBackendOpenSearch)))),
		StoreTimeout:             envutil.Duration("STORE_TIMEOUT", services.DefaultStoreTimeout),
		StoreListLimit:           envutil.Int("STORE_LIST_LIMIT", repos.DefaultListLimit),
		StoreCredentialsSecretID: envutil.String("STORE_CREDENTIALS_SECRET_ID", ""),
		GeneratorProvider:        strings.ToLower(envutil.String("GENERATOR_PROVIDER", "")),
		GeneratorProfile:         envutil.String("GENERATOR_PROFILE", generator.DefaultProfile),
		GeneratorProfilesFile:    envutil.String("GENERATOR_PROFILES_FILE", ""),
		GeneratorArchiveDir:      envutil.String("GENERATOR_ARCHIVE_DIR", ""),
		GeneratorTimeout:         envutil.Duration("GENERATOR_TIMEOUT", services.DefaultGeneratorTimeout),
		OpenAI:                   openai.ConfigFromEnv(),
		Gemini:                   gemini.ConfigFromEnv(),
		Redis:                    bus.RedisConfigFromEnv(),
		APIJWTSecret:             envutil.String("API_JWT_SECRET", ""),
		CORSOrigins:              splitList(envutil.String("CORS_ORIGINS", "")),
		Tracing:                  envutil.Bool("OTEL_ENABLED", false),
	}
	if cfg.GeneratorProvider == "" {
		cfg.GeneratorProvider = defaultProvider(cfg)
	}

	var err error
	switch cfg.StoreBackend {
	case StoreBackendOpenSearch:
		cfg.OpenSearch, err = opensearch.ResolveConfigFromEnv()
	case StoreBackendPostgres:
		cfg.SQL, err = sqlstore.ResolveConfigFromEnv(sqlstore.DriverPostgres)
	case StoreBackendSQLite:
		cfg.SQL, err = sqlstore.ResolveConfigFromEnv(sqlstore.DriverSQLite)
	}
	if err != nil {
		return Config{}, &ConfigError{Code: ConfigErrorInvalidStoreConfig, Field: "STORE_BACKEND", Value: string(cfg.StoreBackend), Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendOpenSearch, StoreBackendPostgres, StoreBackendSQLite:
	default:
		return &ConfigError{Code: ConfigErrorInvalidStoreBackend, Field: "STORE_BACKEND", Value: string(c.StoreBackend)}
	}
	switch c.GeneratorProvider {
	case GeneratorProviderOpenAI, GeneratorProviderGemini:
	default:
		return &ConfigError{Code: ConfigErrorInvalidProvider, Field: "GENERATOR_PROVIDER", Value: c.GeneratorProvider}
	}
	if c.StoreTimeout <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidTimeout, Field: "STORE_TIMEOUT", Value: c.StoreTimeout.String()}
	}
	if c.GeneratorTimeout <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidTimeout, Field: "GENERATOR_TIMEOUT", Value: c.GeneratorTimeout.String()}
	}
	if c.StoreListLimit <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidListLimit, Field: "STORE_LIST_LIMIT", Value: fmt.Sprint(c.StoreListLimit)}
	}
	return nil
}

func (c Config) Addr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

func defaultProvider(c Config) string {
	if strings.TrimSpace(c.Gemini.APIKey) != "" {
		return GeneratorProviderGemini
	}
	return GeneratorProviderOpenAI
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
