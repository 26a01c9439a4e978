package db

import (
	"fmt"
	stdlog "log"
	"net/url"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLitePrefix marks a DATABASE_URL that points at a local SQLite file.
const SQLitePrefix = "sqlite:"

// Open connects to Postgres, or to SQLite when dsn starts with "sqlite:".
// For Postgres the session search_path is pinned to schema (then public),
// and the schema is created if missing.
func Open(dsn, schema string, zl zerolog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	// Surface slow statements; bulk upserts are expected to take a while.
	lg := logger.New(
		stdlog.New(zl.With().Str("component", "gorm").Logger(), "", 0),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{Logger: lg}

	if path, ok := strings.CutPrefix(dsn, SQLitePrefix); ok {
		return openSQLite(path, cfg)
	}

	pgDSN, err := withSearchPath(dsn, schema)
	if err != nil {
		return nil, err
	}
	d, err := gorm.Open(postgres.Open(pgDSN), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := d.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if schema != "" {
		if err := EnsureSchema(d, schema); err != nil {
			return nil, fmt.Errorf("ensure schema %s: %w", schema, err)
		}
	}
	zl.Info().Str("schema", schema).Msg("connected to postgres")
	return d, nil
}

func openSQLite(path string, cfg *gorm.Config) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	d, err := gorm.Open(sqlite.Open(path+sep+"_pragma=busy_timeout(10000)"), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := d.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	sqlDB.SetMaxOpenConns(1)
	return d, nil
}

// withSearchPath adds a search_path runtime parameter to a URL or
// key=value Postgres DSN unless one is already present.
func withSearchPath(dsn, schema string) (string, error) {
	if schema == "" || strings.Contains(dsn, "search_path") {
		return dsn, nil
	}
	path := schema + ",public"

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse database url: %w", err)
		}
		q := u.Query()
		q.Set("search_path", path)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return strings.TrimSpace(dsn) + " search_path=" + path, nil
}
