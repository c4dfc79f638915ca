package opensearch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyc0/fraudM/internal/platform/envutil"
)

type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseSSL             bool
	InsecureSkipVerify bool
	Index              string

	ConnectAttempts int
	ConnectDelay    time.Duration
	RequestTimeout  time.Duration
}

type ConfigErrorCode string

const (
	ConfigErrorMissingHost     ConfigErrorCode = "missing_host"
	ConfigErrorInvalidPort     ConfigErrorCode = "invalid_port"
	ConfigErrorMissingIndex    ConfigErrorCode = "missing_index"
	ConfigErrorInvalidAttempts ConfigErrorCode = "invalid_attempts"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid opensearch config"
	}
	switch e.Code {
	case ConfigErrorMissingHost:
		return "OPENSEARCH_HOST is required"
	case ConfigErrorInvalidPort:
		return fmt.Sprintf("invalid OPENSEARCH_PORT=%q; expected 1-65535", e.Value)
	case ConfigErrorMissingIndex:
		return "OPENSEARCH_INDEX is required"
	case ConfigErrorInvalidAttempts:
		return fmt.Sprintf("invalid STORE_CONNECT_ATTEMPTS=%q; expected positive integer", e.Value)
	default:
		return "invalid opensearch config"
	}
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:               envutil.String("OPENSEARCH_HOST", "opensearch"),
		Port:               envutil.Int("OPENSEARCH_PORT", 9200),
		Username:           envutil.String("OPENSEARCH_USER", "admin"),
		Password:           envutil.String("OPENSEARCH_PASSWORD", "admin"),
		UseSSL:             envutil.Bool("OPENSEARCH_USE_SSL", false),
		InsecureSkipVerify: envutil.Bool("OPENSEARCH_INSECURE_SKIP_VERIFY", false),
		Index:              envutil.String("OPENSEARCH_INDEX", "rules"),
		ConnectAttempts:    envutil.Int("STORE_CONNECT_ATTEMPTS", 5),
		ConnectDelay:       envutil.Duration("STORE_CONNECT_DELAY", 5*time.Second),
		RequestTimeout:     envutil.Duration("STORE_TIMEOUT", 10*time.Second),
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return &ConfigError{Code: ConfigErrorMissingHost}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return &ConfigError{Code: ConfigErrorInvalidPort, Value: strconv.Itoa(cfg.Port)}
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return &ConfigError{Code: ConfigErrorMissingIndex}
	}
	if cfg.ConnectAttempts <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidAttempts, Value: strconv.Itoa(cfg.ConnectAttempts)}
	}
	return nil
}

// BaseURL is scheme://host:port without a trailing slash.
func (c Config) BaseURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	host := strings.TrimSpace(c.Host)
	host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
	return fmt.Sprintf("%s://%s:%d", scheme, strings.TrimRight(host, "/"), c.Port)
}
