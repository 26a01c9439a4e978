package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorClass says how far a write error reaches.
type ErrorClass int

const (
	// NoError is the class of a nil error.
	NoError ErrorClass = iota
	// RowLevel errors are caused by the data of a particular row; other
	// rows can still be written.
	RowLevel
	// Structural errors affect every write: lost connections, missing
	// tables, cancellation.
	Structural
)

func (c ErrorClass) String() string {
	switch c {
	case NoError:
		return "none"
	case RowLevel:
		return "row"
	case Structural:
		return "structural"
	}
	return "unknown"
}

// SQLite has no SQLSTATE; these message fragments mark errors that no
// per-row retry can fix.
var sqliteStructural = []string{
	"no such table",
	"no such column",
	"database is locked",
	"disk i/o error",
	"database disk image is malformed",
	"unable to open database",
	"sql: database is closed",
}

// Classify maps err to an ErrorClass. Unknown errors are row-level so that
// the per-row fallback gets a chance to isolate them.
func Classify(err error) ErrorClass {
	if err == nil {
		return NoError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return Structural
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Structural
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Structural
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range sqliteStructural {
		if strings.Contains(msg, frag) {
			return Structural
		}
	}
	return RowLevel
}

func classifySQLState(code string) ErrorClass {
	if len(code) < 2 {
		return RowLevel
	}
	switch code[:2] {
	case "08", // connection exception
		"3D", // invalid catalog name
		"3F", // invalid schema name
		"42", // syntax error or access rule violation, undefined table/column
		"53", // insufficient resources
		"57", // operator intervention
		"58": // system error
		return Structural
	}
	// 22 data exception, 23 integrity constraint violation, 40 rollbacks
	return RowLevel
}

// IsStructural reports whether err must abort the run.
func IsStructural(err error) bool { return Classify(err) == Structural }

// IsStructural lets *Store serve as the batch writer.
func (s *Store) IsStructural(err error) bool { return IsStructural(err) }
