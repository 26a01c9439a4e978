// Package testutil opens throwaway migrated databases for tests.
package testutil

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/EmpoweredVote/geo-ingest/internal/db"
	"github.com/EmpoweredVote/geo-ingest/internal/geodata"
	"github.com/EmpoweredVote/geo-ingest/internal/runs"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Logger discards output unless GEOIMPORT_TEST_LOG is set.
func Logger() zerolog.Logger {
	if os.Getenv("GEOIMPORT_TEST_LOG") != "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(io.Discard)
}

// DB returns a migrated SQLite database in the test's temp dir.
func DB(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(db.SQLitePrefix+filepath.Join(t.TempDir(), "geo.db"), "", Logger())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := geodata.Migrate(context.Background(), gdb, Logger()); err != nil {
		t.Fatalf("migrate geodata: %v", err)
	}
	if err := runs.Migrate(gdb); err != nil {
		t.Fatalf("migrate runs: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

// WriteFile writes content to name under dir and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}
