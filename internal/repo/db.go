// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and PostgreSQL, plus schema migrations.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-clinic-api/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can use errors.Is either way.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrEmptyDSN is returned by OpenPostgres when no connection string is set.
var ErrEmptyDSN = errors.New("repo: empty postgres dsn")

// sqlitePragmas run on the single pooled connection right after opening.
// foreign_keys enforces the appointment RESTRICT constraints.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// OpenSQLite opens (or creates) the SQLite file at path. The parent directory
// must exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Stat first; sqlite reports a missing directory as "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection that is never recycled, so the PRAGMAs below hold for
	// every statement.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)

	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("repo: %s: %w", p, err)
		}
	}
	if err := instrument(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenPostgres connects to PostgreSQL using the pgx-backed GORM driver.
// Constraint violations surface as *pgconn.PgError and are classified by the
// translate package.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := instrument(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open picks PostgreSQL when dsn is set, otherwise the SQLite file at path.
func Open(dsn, path string) (*gorm.DB, error) {
	if dsn != "" {
		return OpenPostgres(dsn)
	}
	return OpenSQLite(path)
}

// instrument attaches OpenTelemetry spans to every GORM statement.
func instrument(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates the tables for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Doctor{},
		&domain.Patient{},
		&domain.Appointment{},
	)
}
