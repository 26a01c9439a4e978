package importer

import (
	"fmt"
	"math"
	"strconv"

	"github.com/EmpoweredVote/geo-ingest/internal/batch"
	"github.com/EmpoweredVote/geo-ingest/internal/geo"
	"github.com/EmpoweredVote/geo-ingest/internal/geodata"
	"github.com/EmpoweredVote/geo-ingest/internal/source"
)

// propertyCodes are the ONSUD area code column prefixes, in table order
// after latitude/longitude.
var propertyCodes = []string{"CTRY", "RGN", "CTY", "LAD", "CED", "WD", "PARNCP", "PCON", "LSOA"}

func propertyPlan(rc rowContext) plan {
	return plan{
		target: batch.Target{
			Columns:  geodata.PropertyTable.ColumnNames(),
			Conflict: []string{"uprn"},
		},
		open: func(path string, opts source.Options) (recordSet, error) {
			return openCSV(path, opts, func(cs *columnSet) func(source.Row) ([]any, error) {
				uprn := cs.need("UPRN", "uprn")
				pc := cs.need("PCDS", "pcds")
				east := cs.need("GRIDGB1E", "gridgb1e")
				north := cs.need("GRIDGB1N", "gridgb1n")
				codes := make([]int, len(propertyCodes))
				for i, p := range propertyCodes {
					if p == "LAD" {
						codes[i] = cs.need("LAD##CD", `LAD\d{2}CD`)
						continue
					}
					codes[i] = cs.find(p + `\d{2}CD`)
				}
				lad := codes[3]

				return func(r source.Row) ([]any, error) {
					id, err := strconv.ParseInt(r.Get(uprn), 10, 64)
					if err != nil || id <= 0 {
						return nil, skipf("line %d: invalid UPRN %q", r.Line, r.Get(uprn))
					}
					postcode, ok := normalizePostcode(r.Get(pc))
					if !ok {
						return nil, skipf("line %d: invalid postcode %q", r.Line, r.Get(pc))
					}
					e, okE := parseFloat(r.Get(east))
					n, okN := parseFloat(r.Get(north))
					if !okE || !okN {
						return nil, skipf("line %d: non-numeric grid reference", r.Line)
					}
					if normalizeCode(r.Get(lad)) == "" {
						return nil, skipf("line %d: empty district code", r.Line)
					}
					ll, err := geo.ToWGS84(e, n)
					if err != nil {
						return nil, fmt.Errorf("line %d: (%v, %v): %w", r.Line, e, n, err)
					}

					row := make([]any, 0, 17)
					row = append(row, id, postcode, int64(math.Round(e)), int64(math.Round(n)), ll.Lat, ll.Lng)
					for i, idx := range codes {
						if i == 3 {
							row = append(row, normalizeCode(r.Get(idx)))
							continue
						}
						row = append(row, areaCode(r.Get(idx)))
					}
					return append(row, rc.version, rc.importedAt), nil
				}
			})
		},
	}
}
