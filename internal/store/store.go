// Package store is the relational store used by the import pipeline: bulk
// upserts, truncation, DDL and the staging exchange, on Postgres or SQLite.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dialect is the SQL flavour of the underlying connection.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Per-statement bind parameter limits.
const (
	postgresMaxParams = 65535
	sqliteMaxParams   = 32766
)

// Store wraps a gorm connection with the operations the importers need.
type Store struct {
	db      *gorm.DB
	dialect Dialect
	log     zerolog.Logger
}

// New returns a Store for db. Dialects other than postgres are treated as
// SQLite.
func New(db *gorm.DB, log zerolog.Logger) *Store {
	d := SQLite
	if db.Dialector.Name() == "postgres" {
		d = Postgres
	}
	return &Store{db: db, dialect: d, log: log.With().Str("component", "store").Logger()}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

// MaxParams is the bind-parameter limit of one statement.
func (s *Store) MaxParams() int {
	if s.dialect == Postgres {
		return postgresMaxParams
	}
	return sqliteMaxParams
}

// UpsertOptions controls conflict handling for Upsert.
type UpsertOptions struct {
	// Conflict lists the key columns of the unique constraint.
	Conflict []string
	// Update lists the columns refreshed on conflict. Nil means every
	// non-key column.
	Update []string
	// NewerOnly names a column that must not move backwards: an existing
	// row is only updated when the incoming value is >= the stored one.
	NewerOnly string
}

// Upsert writes rows into table in one INSERT ... ON CONFLICT statement and
// returns the number of rows affected.
func (s *Store) Upsert(ctx context.Context, table string, columns []string, rows [][]any, opts UpsertOptions) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q, args, err := buildUpsertSQL(table, columns, rows, opts)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Exec(q, args...)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

// Truncate removes every row from table.
func (s *Store) Truncate(ctx context.Context, table string) error {
	q := "TRUNCATE TABLE " + quoteIdent(table)
	if s.dialect == SQLite {
		q = "DELETE FROM " + quoteIdent(table)
	}
	if err := s.db.WithContext(ctx).Exec(q).Error; err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// TableExists reports whether table exists in the current schema.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	return tableExists(s.db.WithContext(ctx), s.dialect, table)
}

func tableExists(tx *gorm.DB, d Dialect, table string) (bool, error) {
	var n int64
	var err error
	if d == Postgres {
		err = tx.Raw(`SELECT count(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = ?`, table).Scan(&n).Error
	} else {
		err = tx.Raw(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n).Error
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	return countRows(s.db.WithContext(ctx), table)
}

func countRows(tx *gorm.DB, table string) (int64, error) {
	var n int64
	if err := tx.Raw("SELECT count(*) FROM " + quoteIdent(table)).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Exec runs a raw statement, typically DDL.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	return s.db.WithContext(ctx).Exec(sql, args...).Error
}

// DropTable drops table if it exists.
func (s *Store) DropTable(ctx context.Context, table string) error {
	if err := s.db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + quoteIdent(table)).Error; err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	return nil
}
