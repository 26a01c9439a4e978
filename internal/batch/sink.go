// Package batch buffers transformed rows and writes them with bulk upserts,
// falling back to row-at-a-time writes to isolate bad rows.
package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/EmpoweredVote/geo-ingest/internal/store"
	"github.com/rs/zerolog"
)

// DefaultSize is used when NewSink is given a non-positive size.
const DefaultSize = 1000

// maxWarnings caps warn-level logging of per-row failures; the rest go to
// debug.
const maxWarnings = 5

// Writer is the store surface the sink needs.
type Writer interface {
	Upsert(ctx context.Context, table string, columns []string, rows [][]any, opts store.UpsertOptions) (int64, error)
	MaxParams() int
	IsStructural(err error) bool
}

// Target describes where rows go and how conflicts resolve.
type Target struct {
	Table    string
	Columns  []string
	Conflict []string
	// Update defaults to every non-conflict column.
	Update []string
	// NewerOnly, when set, stops an older row replacing a newer one.
	NewerOnly string
}

// Result counts one or more flushes.
// Submitted == Written + Failed + Duplicates always holds.
type Result struct {
	Submitted  int64
	Written    int64
	Failed     int64
	Duplicates int64
}

func (r *Result) add(o Result) {
	r.Submitted += o.Submitted
	r.Written += o.Written
	r.Failed += o.Failed
	r.Duplicates += o.Duplicates
}

// Sink accumulates rows for a single target. It is not safe for concurrent
// use; each import run owns one.
type Sink struct {
	w      Writer
	target Target
	opts   store.UpsertOptions
	size   int
	keyIdx []int
	rows   [][]any
	totals Result
	warned int
	log    zerolog.Logger
}

// NewSink returns a sink flushing at most size rows per statement, reduced
// further so a statement stays under the writer's parameter limit. It
// panics if a conflict column is not in the column list.
func NewSink(w Writer, t Target, size int, log zerolog.Logger) *Sink {
	if size <= 0 {
		size = DefaultSize
	}
	if len(t.Columns) > 0 {
		size = min(size, max(1, w.MaxParams()/len(t.Columns)))
	}
	keyIdx := make([]int, len(t.Conflict))
	for i, k := range t.Conflict {
		keyIdx[i] = -1
		for j, c := range t.Columns {
			if c == k {
				keyIdx[i] = j
				break
			}
		}
		if keyIdx[i] < 0 {
			panic(fmt.Sprintf("batch: conflict column %q not in columns of %s", k, t.Table))
		}
	}
	return &Sink{
		w:      w,
		target: t,
		opts:   store.UpsertOptions{Conflict: t.Conflict, Update: t.Update, NewerOnly: t.NewerOnly},
		size:   size,
		keyIdx: keyIdx,
		rows:   make([][]any, 0, size),
		log:    log.With().Str("table", t.Table).Logger(),
	}
}

// Size is the effective batch size.
func (s *Sink) Size() int { return s.size }

// Len is the number of pending rows.
func (s *Sink) Len() int { return len(s.rows) }

// Totals sums every flush so far.
func (s *Sink) Totals() Result { return s.totals }

// Add queues row and reports whether the batch is full. The sink keeps
// row; callers must not reuse it.
func (s *Sink) Add(row []any) bool {
	s.rows = append(s.rows, row)
	return len(s.rows) >= s.size
}

func (s *Sink) key(row []any) string {
	if len(s.keyIdx) == 1 {
		return fmt.Sprint(row[s.keyIdx[0]])
	}
	parts := make([]string, len(s.keyIdx))
	for i, j := range s.keyIdx {
		parts[i] = fmt.Sprint(row[j])
	}
	return strings.Join(parts, "\x1f")
}

// dedupe keeps the first position of each key with the payload of its last
// occurrence.
func (s *Sink) dedupe(rows [][]any) ([][]any, int64) {
	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	var dups int64
	for _, r := range rows {
		k := s.key(r)
		if i, ok := pos[k]; ok {
			out[i] = r
			dups++
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out, dups
}

// Flush writes pending rows. Row-level failures are counted in the result;
// a structural error is returned and the pending rows are dropped.
func (s *Sink) Flush(ctx context.Context) (Result, error) {
	if len(s.rows) == 0 {
		return Result{}, nil
	}
	pending := s.rows
	s.rows = make([][]any, 0, s.size)

	rows, dups := s.dedupe(pending)
	res := Result{Submitted: int64(len(pending)), Duplicates: dups}
	defer func() { s.totals.add(res) }()

	_, err := s.w.Upsert(ctx, s.target.Table, s.target.Columns, rows, s.opts)
	if err == nil {
		res.Written = int64(len(rows))
		return res, nil
	}
	if s.w.IsStructural(err) {
		res.Failed = int64(len(rows))
		return res, err
	}
	s.log.Warn().Err(err).Int("rows", len(rows)).Msg("bulk upsert failed, retrying row by row")

	for i, r := range rows {
		_, rerr := s.w.Upsert(ctx, s.target.Table, s.target.Columns, [][]any{r}, s.opts)
		if rerr == nil {
			res.Written++
			continue
		}
		if s.w.IsStructural(rerr) {
			res.Failed += int64(len(rows) - i)
			return res, rerr
		}
		res.Failed++
		ev := s.log.Debug()
		if s.warned < maxWarnings {
			s.warned++
			ev = s.log.Warn()
		}
		ev.Err(rerr).Str("key", s.key(r)).Msg("row rejected")
	}
	return res, nil
}
