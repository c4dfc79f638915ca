package sqlstore

import (
	"context"
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/retry"
)

func dialector(cfg Config) gorm.Dialector {
	if cfg.Driver == DriverSQLite {
		return sqlite.Open(cfg.DSN())
	}
	return postgres.Open(cfg.DSN())
}

// Connect opens the database and pings it, retrying with a fixed delay up
// to cfg.ConnectAttempts. The returned handle is shared by all requests.
func Connect(ctx context.Context, logg *logger.Logger, cfg Config) (*gorm.DB, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clog := logg.With("client", "SQLStore", "driver", string(cfg.Driver))

	rc := retry.Fixed(cfg.ConnectAttempts, cfg.ConnectDelay)
	rc.OnFailure = func(attempt int, err error) {
		clog.Warn("Database connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.ConnectAttempts,
			"dsn", cfg.Redacted(),
			"error", err,
		)
	}

	attempt := 0
	db, err := retry.DoWithResult(ctx, rc, func() (*gorm.DB, error) {
		attempt++
		return open(ctx, cfg)
	})
	if err != nil {
		clog.Error("Database unreachable, giving up", "attempts", attempt, "dsn", cfg.Redacted(), "error", err)
		return nil, err
	}
	clog.Info("Connected to database", "dsn", cfg.Redacted(), "attempt", attempt)
	return db, nil
}

func open(ctx context.Context, cfg Config) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector(cfg), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap %s handle: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// One writer at a time; avoids "database is locked" under concurrent requests.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// Close closes the pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
