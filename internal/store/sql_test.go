package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestBuildUpsertSQL(t *testing.T) {
	q, args, err := buildUpsertSQL("boundary_names",
		[]string{"boundary_type", "gss_code", "name", "version_date"},
		[][]any{{"ward", "E05000001", "Aldersgate", "2024-12-01"}, {"ward", "E05000002", "Aldgate", "2024-12-01"}},
		UpsertOptions{Conflict: []string{"boundary_type", "gss_code"}, NewerOnly: "version_date"})
	if err != nil {
		t.Fatalf("buildUpsertSQL: %v", err)
	}
	want := `INSERT INTO "boundary_names" ("boundary_type", "gss_code", "name", "version_date") VALUES (?,?,?,?),(?,?,?,?)` +
		` ON CONFLICT ("boundary_type", "gss_code") DO UPDATE SET "name" = excluded."name", "version_date" = excluded."version_date"` +
		` WHERE "boundary_names"."version_date" <= excluded."version_date"`
	if q != want {
		t.Errorf("sql =\n%s\nwant\n%s", q, want)
	}
	if len(args) != 8 || args[4] != "ward" || args[6] != "Aldgate" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildUpsertSQL_ExplicitUpdateAndDoNothing(t *testing.T) {
	q, _, err := buildUpsertSQL("t", []string{"a", "b", "c"}, [][]any{{1, 2, 3}},
		UpsertOptions{Conflict: []string{"a"}, Update: []string{"c"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(q, `DO UPDATE SET "c" = excluded."c"`) {
		t.Errorf("sql = %s", q)
	}

	q, _, err = buildUpsertSQL("t", []string{"a"}, [][]any{{1}}, UpsertOptions{Conflict: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(q, `ON CONFLICT ("a") DO NOTHING`) {
		t.Errorf("sql = %s", q)
	}
}

func TestBuildUpsertSQL_Errors(t *testing.T) {
	tests := []struct {
		name string
		cols []string
		rows [][]any
		opts UpsertOptions
	}{
		{"no columns", nil, [][]any{{}}, UpsertOptions{Conflict: []string{"a"}}},
		{"no conflict", []string{"a"}, [][]any{{1}}, UpsertOptions{}},
		{"conflict not a column", []string{"a"}, [][]any{{1}}, UpsertOptions{Conflict: []string{"b"}}},
		{"short row", []string{"a", "b"}, [][]any{{1}}, UpsertOptions{Conflict: []string{"a"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := buildUpsertSQL("t", tc.cols, tc.rows, tc.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCreateTableSQL(t *testing.T) {
	def := TableDef{
		Columns: []ColumnDef{
			{Name: "uprn", Type: BigInt, NotNull: true},
			{Name: "postcode", Type: Text},
			{Name: "latitude", Type: Float},
			{Name: "version_date", Type: Date},
		},
		PrimaryKey: []string{"uprn"},
	}
	got, err := createTableSQL(Postgres, def, "properties_staging", "a1b2c3d4")
	if err != nil {
		t.Fatal(err)
	}
	want := `CREATE TABLE IF NOT EXISTS "properties_staging" ("uprn" bigint NOT NULL, "postcode" text, ` +
		`"latitude" double precision, "version_date" date, CONSTRAINT "properties_staging_pkey_a1b2c3d4" PRIMARY KEY ("uprn"))`
	if got != want {
		t.Errorf("postgres =\n%s\nwant\n%s", got, want)
	}

	got, err = createTableSQL(SQLite, def, "properties_staging", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `"latitude" REAL`) || !strings.Contains(got, `"uprn" INTEGER NOT NULL`) {
		t.Errorf("sqlite = %s", got)
	}

	if _, err := createTableSQL(Postgres, TableDef{Columns: []ColumnDef{{Name: "x", Type: "geometry"}}}, "t", ""); err == nil {
		t.Error("expected error for unknown column type")
	}
}

func TestIndexAndForeignKeySQL(t *testing.T) {
	got := createIndexSQL("properties", IndexDef{Name: "idx_properties_postcode", Columns: []string{"postcode"}}, "g1")
	if got != `CREATE INDEX IF NOT EXISTS "idx_properties_postcode_g1" ON "properties" ("postcode")` {
		t.Errorf("index = %s", got)
	}
	got = addForeignKeySQL("properties", ForeignKeyDef{
		Name: "fk_properties_lad", Columns: []string{"lad_code"},
		RefTable: "gss_codes", RefColumns: []string{"gss_code"},
	}, "g1")
	want := `ALTER TABLE "properties" ADD CONSTRAINT "fk_properties_lad_g1" FOREIGN KEY ("lad_code") REFERENCES "gss_codes" ("gss_code") NOT VALID`
	if got != want {
		t.Errorf("fk = %s", got)
	}
}

func TestObjectName_Limit(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := objectName(long, "abcd1234")
	if len(got) != 63 || !strings.HasSuffix(got, "_abcd1234") {
		t.Errorf("objectName = %q (%d)", got, len(got))
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, NoError},
		{"cancelled", fmt.Errorf("flush: %w", context.Canceled), Structural},
		{"deadline", context.DeadlineExceeded, Structural},
		{"net", timeoutErr{}, Structural},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, Structural},
		{"connection", &pgconn.PgError{Code: "08006"}, Structural},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, Structural},
		{"unique violation", fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "23505"}), RowLevel},
		{"numeric out of range", &pgconn.PgError{Code: "22003"}, RowLevel},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, RowLevel},
		{"sqlite missing table", errors.New("SQL logic error: no such table: properties (1)"), Structural},
		{"sqlite constraint", errors.New("constraint failed: NOT NULL constraint failed: properties.uprn (1299)"), RowLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
