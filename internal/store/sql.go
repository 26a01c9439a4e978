package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/lib/pq"
)

var errNoColumns = errors.New("store: no columns")

func quoteIdent(name string) string { return pq.QuoteIdentifier(name) }

func quoteList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = quoteIdent(n)
	}
	return strings.Join(q, ", ")
}

// buildUpsertSQL renders a multi-row INSERT ... ON CONFLICT statement with
// "?" placeholders and returns it with the flattened arguments. Row values
// must not be slices: gorm expands those into lists.
func buildUpsertSQL(table string, columns []string, rows [][]any, opts UpsertOptions) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, errNoColumns
	}
	if len(opts.Conflict) == 0 {
		return "", nil, fmt.Errorf("store: upsert into %s without conflict columns", table)
	}
	for _, k := range opts.Conflict {
		if !slices.Contains(columns, k) {
			return "", nil, fmt.Errorf("store: conflict column %q not in column list", k)
		}
	}

	update := opts.Update
	if update == nil {
		for _, c := range columns {
			if !slices.Contains(opts.Conflict, c) {
				update = append(update, c)
			}
		}
	}

	var b strings.Builder
	b.Grow(64 + len(rows)*(len(columns)*3+4))
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	b.WriteString(quoteList(columns))
	b.WriteString(") VALUES ")

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, r := range rows {
		if len(r) != len(columns) {
			return "", nil, fmt.Errorf("store: row %d has %d values, want %d", i, len(r), len(columns))
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(placeholder)
		args = append(args, r...)
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(quoteList(opts.Conflict))
	b.WriteString(")")
	if len(update) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String(), args, nil
	}
	b.WriteString(" DO UPDATE SET ")
	for i, c := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		q := quoteIdent(c)
		b.WriteString(q)
		b.WriteString(" = excluded.")
		b.WriteString(q)
	}
	if opts.NewerOnly != "" {
		q := quoteIdent(opts.NewerOnly)
		fmt.Fprintf(&b, " WHERE %s.%s <= excluded.%s", quoteIdent(table), q, q)
	}
	return b.String(), args, nil
}
