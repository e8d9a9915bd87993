// Package store persists audit log entries and request logs with gorm, and
// provides the gorm plugin that records changes to auditable models.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Options tunes Open.
type Options struct {
	// Tracing installs the OpenTelemetry gorm plugin so every query becomes
	// a span under the request span.
	Tracing bool
}

// DB is a gorm-backed audit.Store.
type DB struct {
	db *gorm.DB
}

// Open connects to dsn with the named driver.
func Open(driver, dsn string, opts Options) (*DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: pool: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases alive and serialises writers.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if opts.Tracing {
		if err := db.Use(gormtracing.NewPlugin(gormtracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("store: tracing plugin: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *DB {
	return &DB{db: db}
}

// Gorm returns the underlying connection, e.g. to register ChangeCapture or
// to run application queries on the same pool.
func (s *DB) Gorm() *gorm.DB {
	return s.db
}

// Migrate creates or updates the audit tables.
func (s *DB) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&logEntryModel{}, &requestLogModel{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *DB) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
