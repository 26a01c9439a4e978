package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ColumnType is a dialect-neutral column type.
type ColumnType string

const (
	BigInt    ColumnType = "bigint"
	Int       ColumnType = "int"
	Text      ColumnType = "text"
	Float     ColumnType = "float"
	Date      ColumnType = "date"
	Timestamp ColumnType = "timestamp"
	JSON      ColumnType = "json"
)

var columnTypes = map[Dialect]map[ColumnType]string{
	Postgres: {
		BigInt: "bigint", Int: "integer", Text: "text", Float: "double precision",
		Date: "date", Timestamp: "timestamptz", JSON: "jsonb",
	},
	SQLite: {
		BigInt: "INTEGER", Int: "INTEGER", Text: "TEXT", Float: "REAL",
		Date: "DATE", Timestamp: "DATETIME", JSON: "TEXT",
	},
}

type ColumnDef struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// TableDef describes a table that is created by hand rather than through
// AutoMigrate, because several physical copies of it exist at once.
type TableDef struct {
	Columns    []ColumnDef
	PrimaryKey []string
}

// ColumnNames returns the column names in declaration order.
func (d TableDef) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

type ForeignKeyDef struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
}

// objectName joins a logical object name with a generation suffix, keeping
// it within the Postgres identifier limit.
func objectName(base, suffix string) string {
	const maxIdent = 63
	if suffix == "" {
		if len(base) > maxIdent {
			return base[:maxIdent]
		}
		return base
	}
	if keep := maxIdent - len(suffix) - 1; len(base) > keep {
		base = base[:keep]
	}
	return base + "_" + suffix
}

func createTableSQL(d Dialect, def TableDef, name, suffix string) (string, error) {
	if len(def.Columns) == 0 {
		return "", errNoColumns
	}
	types := columnTypes[d]
	parts := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		t, ok := types[c.Type]
		if !ok {
			return "", fmt.Errorf("store: column %s has unknown type %q", c.Name, c.Type)
		}
		col := quoteIdent(c.Name) + " " + t
		if c.NotNull {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if len(def.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			quoteIdent(objectName(name+"_pkey", suffix)), quoteList(def.PrimaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(parts, ", ")), nil
}

// CreateTable creates name from def if it does not exist. The primary key
// constraint is named after the physical table plus suffix.
func (s *Store) CreateTable(ctx context.Context, def TableDef, name, suffix string) error {
	q, err := createTableSQL(s.dialect, def, name, suffix)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Exec(q).Error; err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

func createIndexSQL(table string, idx IndexDef, suffix string) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, quoteIdent(objectName(idx.Name, suffix)), quoteIdent(table), quoteList(idx.Columns))
}

// CreateIndex builds idx on table. The index name carries suffix.
func (s *Store) CreateIndex(ctx context.Context, table string, idx IndexDef, suffix string) error {
	if err := s.db.WithContext(ctx).Exec(createIndexSQL(table, idx, suffix)).Error; err != nil {
		return fmt.Errorf("create index %s on %s: %w", idx.Name, table, err)
	}
	return nil
}

func addForeignKeySQL(table string, fk ForeignKeyDef, suffix string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) NOT VALID",
		quoteIdent(table), quoteIdent(objectName(fk.Name, suffix)),
		quoteList(fk.Columns), quoteIdent(fk.RefTable), quoteList(fk.RefColumns))
}

// AddForeignKey adds fk to table without validating existing rows. SQLite
// cannot add constraints to an existing table, so it is a no-op there.
func (s *Store) AddForeignKey(ctx context.Context, table string, fk ForeignKeyDef, suffix string) error {
	if s.dialect != Postgres {
		s.log.Debug().Str("table", table).Str("constraint", fk.Name).Msg("foreign keys not supported on this dialect, skipping")
		return nil
	}
	if err := s.db.WithContext(ctx).Exec(addForeignKeySQL(table, fk, suffix)).Error; err != nil {
		return fmt.Errorf("add foreign key %s on %s: %w", fk.Name, table, err)
	}
	return nil
}

// Generation returns a short random suffix for object names of one table
// generation.
func Generation() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
