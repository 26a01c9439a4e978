package importer

import (
	"github.com/EmpoweredVote/geo-ingest/internal/batch"
	"github.com/EmpoweredVote/geo-ingest/internal/source"
)

var wardColumns = []string{
	"ward_code", "division_code", "version_date", "ward_name", "lad_code", "lad_name",
	"county_code", "county_name", "division_name", "imported_at",
}

// requiredCode validates a mandatory hierarchy code.
func requiredCode(r source.Row, idx int, what string) (string, error) {
	c := normalizeCode(r.Get(idx))
	if c == "" {
		return "", skipf("line %d: missing %s code", r.Line, what)
	}
	if !isGSS(c) {
		return "", skipf("line %d: invalid %s code %q", r.Line, what, c)
	}
	return c, nil
}

func wardPlan(rc rowContext) plan {
	return plan{
		target: batch.Target{
			Columns:  wardColumns,
			Conflict: []string{"ward_code", "division_code", "version_date"},
		},
		open: func(path string, opts source.Options) (recordSet, error) {
			return openCSV(path, opts, func(cs *columnSet) func(source.Row) ([]any, error) {
				wd := cs.need("WD##CD", `WD\d{2}CD`)
				lad := cs.need("LAD##CD", `LAD\d{2}CD`)
				wdNM, ladNM := cs.find(`WD\d{2}NM`), cs.find(`LAD\d{2}NM`)
				cty, ctyNM := cs.find(`CTY\d{2}CD`), cs.find(`CTY\d{2}NM`)
				ced, cedNM := cs.find(`CED\d{2}CD`), cs.find(`CED\d{2}NM`)

				return func(r source.Row) ([]any, error) {
					ward, err := requiredCode(r, wd, "ward")
					if err != nil {
						return nil, err
					}
					district, err := requiredCode(r, lad, "district")
					if err != nil {
						return nil, err
					}
					// Single-tier areas have no division; the key needs a value.
					division := ""
					if c, ok := areaCode(r.Get(ced)).(string); ok {
						division = c
					}
					return []any{
						ward, division, rc.version, nullableName(r.Get(wdNM)),
						district, nullableName(r.Get(ladNM)),
						areaCode(r.Get(cty)), nullableName(r.Get(ctyNM)), nullableName(r.Get(cedNM)),
						rc.importedAt,
					}, nil
				}
			})
		},
	}
}

var parishColumns = []string{
	"parish_code", "ward_code", "version_date", "parish_name", "ward_name",
	"lad_code", "lad_name", "imported_at",
}

func parishPlan(rc rowContext) plan {
	return plan{
		target: batch.Target{
			Columns:  parishColumns,
			Conflict: []string{"parish_code", "ward_code", "version_date"},
		},
		open: func(path string, opts source.Options) (recordSet, error) {
			return openCSV(path, opts, func(cs *columnSet) func(source.Row) ([]any, error) {
				par := cs.need("PAR##CD", `PAR(NCP)?\d{2}CD`)
				wd := cs.need("WD##CD", `WD\d{2}CD`)
				lad := cs.need("LAD##CD", `LAD\d{2}CD`)
				parNM := cs.find(`PAR(NCP)?\d{2}NM`)
				wdNM, ladNM := cs.find(`WD\d{2}NM`), cs.find(`LAD\d{2}NM`)

				return func(r source.Row) ([]any, error) {
					parish, err := requiredCode(r, par, "parish")
					if err != nil {
						return nil, err
					}
					ward, err := requiredCode(r, wd, "ward")
					if err != nil {
						return nil, err
					}
					district, err := requiredCode(r, lad, "district")
					if err != nil {
						return nil, err
					}
					return []any{
						parish, ward, rc.version, nullableName(r.Get(parNM)), nullableName(r.Get(wdNM)),
						district, nullableName(r.Get(ladNM)), rc.importedAt,
					}, nil
				}
			})
		},
	}
}
