package db

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithSearchPath(t *testing.T) {
	tests := []struct {
		name, dsn, schema, want string
	}{
		{"url", "postgres://u:p@localhost:5432/geo?sslmode=disable", "geo", "postgres://u:p@localhost:5432/geo?search_path=geo%2Cpublic&sslmode=disable"},
		{"keyvalue", "host=localhost dbname=geo", "geo", "host=localhost dbname=geo search_path=geo,public"},
		{"already set", "postgres://localhost/geo?search_path=x", "geo", "postgres://localhost/geo?search_path=x"},
		{"no schema", "postgres://localhost/geo", "", "postgres://localhost/geo"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := withSearchPath(tc.dsn, tc.schema)
			if err != nil {
				t.Fatalf("withSearchPath: %v", err)
			}
			if got != tc.want {
				t.Errorf("withSearchPath = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	d, err := Open(SQLitePrefix+filepath.Join(t.TempDir(), "geo.db"), "geo", zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var one int
	if err := d.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
		t.Fatalf("SELECT 1 = %d, %v", one, err)
	}
	if d.Dialector.Name() != "sqlite" {
		t.Errorf("dialect = %q", d.Dialector.Name())
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open("", "geo", zerolog.New(io.Discard)); err == nil {
		t.Error("expected error for empty dsn")
	}
}
