package sqlstore

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyc0/fraudM/internal/platform/envutil"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

type Config struct {
	Driver Driver

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// SQLitePath is a file path or a "file:...?mode=memory" URI.
	SQLitePath string

	ConnectAttempts int
	ConnectDelay    time.Duration
	SlowThreshold   time.Duration
}

func ResolveConfigFromEnv(driver Driver) (Config, error) {
	cfg := Config{
		Driver:          driver,
		Host:            envutil.String("POSTGRES_HOST", "localhost"),
		Port:            envutil.Int("POSTGRES_PORT", 5432),
		User:            envutil.String("POSTGRES_USER", "postgres"),
		Password:        envutil.String("POSTGRES_PASSWORD", ""),
		Name:            envutil.String("POSTGRES_NAME", "rules"),
		SSLMode:         envutil.String("POSTGRES_SSLMODE", "disable"),
		SQLitePath:      envutil.String("SQLITE_PATH", "rules.db"),
		ConnectAttempts: envutil.Int("STORE_CONNECT_ATTEMPTS", 5),
		ConnectDelay:    envutil.Duration("STORE_CONNECT_DELAY", 5*time.Second),
		SlowThreshold:   envutil.Duration("SQL_SLOW_THRESHOLD", time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Host) == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("POSTGRES_HOST and POSTGRES_NAME are required")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported sql driver %q", c.Driver)
	}
	if c.ConnectAttempts <= 0 {
		return fmt.Errorf("STORE_CONNECT_ATTEMPTS must be positive, got %d", c.ConnectAttempts)
	}
	return nil
}

// DSN renders the driver connection string.
func (c Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Redacted is DSN without the password, for logs.
func (c Config) Redacted() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.User, c.Host, c.Port, c.Name)
}
