package importer

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/EmpoweredVote/geo-ingest/internal/batch"
	"github.com/EmpoweredVote/geo-ingest/internal/source"
	"github.com/EmpoweredVote/geo-ingest/internal/store"
)

// recordSet is one opened source file bound to a dataset transform.
type recordSet struct {
	src interface {
		Count(ctx context.Context) (int64, error)
		Fingerprint() string
	}
	// each yields a row or a per-record error for every record; its return
	// value is a structural error that ends the file.
	each func(yield func(row []any, err error) bool) error
}

// plan is everything dataset-specific about a run.
type plan struct {
	target batch.Target
	open   func(path string, opts source.Options) (recordSet, error)
	// finish, when set, runs once after the last batch is written.
	finish func(ctx context.Context, s *store.Store, table string) error
}

// rowContext carries the values stamped on every row of a run.
type rowContext struct {
	version      time.Time
	importedAt   time.Time
	boundaryType string
	prefix       string
}

func (d Dataset) plan(job Job, rc rowContext) (plan, error) {
	var p plan
	switch d {
	case PropertyDirectory:
		p = propertyPlan(rc)
	case PostcodeLookup:
		p = postcodePlan(rc)
	case BoundaryNames:
		p = namesPlan(rc)
	case BoundaryPolygons:
		p = polygonsPlan(rc)
	case WardHierarchy:
		p = wardPlan(rc)
	case ParishHierarchy:
		p = parishPlan(rc)
	default:
		return plan{}, fmt.Errorf("no import plan for %s", d)
	}
	p.target.Table = d.Table()
	if job.Table != "" {
		p.target.Table = job.Table
	}
	return p, nil
}

func csvRecords(c *source.CSV, transform func(source.Row) ([]any, error)) recordSet {
	return recordSet{
		src: c,
		each: func(yield func([]any, error) bool) error {
			for row, err := range c.Rows() {
				if err != nil {
					if source.IsRowError(err) {
						if !yield(nil, fmt.Errorf("%w: %w", errSkipped, err)) {
							return nil
						}
						continue
					}
					return err
				}
				if !yield(transform(row)) {
					return nil
				}
			}
			return nil
		},
	}
}

func geoJSONRecords(g *source.GeoJSON, transform func(source.Feature) ([]any, error)) recordSet {
	return recordSet{
		src: g,
		each: func(yield func([]any, error) bool) error {
			for f, err := range g.Features() {
				if err != nil {
					if source.IsRowError(err) {
						if !yield(nil, fmt.Errorf("%w: %w", errSkipped, err)) {
							return nil
						}
						continue
					}
					return err
				}
				if !yield(transform(f)) {
					return nil
				}
			}
			return nil
		},
	}
}

// columnSet resolves header columns by case-insensitive patterns and
// collects the required ones that are missing.
type columnSet struct {
	csv     *source.CSV
	missing []string
}

func columnPattern(alt string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + alt + `$`)
}

// find returns the first alternative present in the header. Alternatives
// are anchored regular expressions; when one matches several columns the
// highest-numbered one wins.
func (cs *columnSet) find(alts ...string) int {
	for _, alt := range alts {
		if _, idx, ok := cs.csv.Match(columnPattern(alt)); ok {
			return idx
		}
	}
	return -1
}

// need is find for a required column; label names it in the error.
func (cs *columnSet) need(label string, alts ...string) int {
	idx := cs.find(alts...)
	if idx < 0 {
		cs.missing = append(cs.missing, label)
	}
	return idx
}

func (cs *columnSet) err() error {
	if len(cs.missing) == 0 {
		return nil
	}
	return &source.MissingColumnsError{Path: cs.csv.Path(), Missing: cs.missing}
}

// openCSV opens path and binds it with bind, which resolves columns and
// returns the row transform.
func openCSV(path string, opts source.Options, bind func(*columnSet) func(source.Row) ([]any, error)) (recordSet, error) {
	c, err := source.OpenCSV(path, opts)
	if err != nil {
		return recordSet{}, err
	}
	cs := &columnSet{csv: c}
	transform := bind(cs)
	if err := cs.err(); err != nil {
		return recordSet{}, err
	}
	return csvRecords(c, transform), nil
}
