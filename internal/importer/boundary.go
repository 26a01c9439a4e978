package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/EmpoweredVote/geo-ingest/internal/batch"
	"github.com/EmpoweredVote/geo-ingest/internal/geodata"
	"github.com/EmpoweredVote/geo-ingest/internal/source"
	"github.com/EmpoweredVote/geo-ingest/internal/store"
	"github.com/lib/pq"
)

var nameColumns = []string{
	"boundary_type", "gss_code", "name", "name_welsh", "version_date", "source", "imported_at",
}

func namesPlan(rc rowContext) plan {
	return plan{
		target: batch.Target{
			Columns:   nameColumns,
			Conflict:  []string{"boundary_type", "gss_code"},
			NewerOnly: "version_date",
		},
		finish: func(ctx context.Context, s *store.Store, table string) error {
			return registerCodes(ctx, s, table, rc.boundaryType)
		},
		open: func(path string, opts source.Options) (recordSet, error) {
			src := filepath.Base(path)
			return openCSV(path, opts, func(cs *columnSet) func(source.Row) ([]any, error) {
				p := regexp.QuoteMeta(rc.prefix)
				code := cs.need(rc.prefix+"##CD", p+`\d{2}CD`, "code", "gss_code", "areacd")
				name := cs.need(rc.prefix+"##NM", p+`\d{2}NM`, "name", "areanm")
				welsh := cs.find(p + `\d{2}NMW`)

				return func(r source.Row) ([]any, error) {
					c := normalizeCode(r.Get(code))
					n := normalizeName(r.Get(name))
					if c == "" || n == "" {
						return nil, skipf("line %d: missing code or name", r.Line)
					}
					if !isGSS(c) {
						return nil, skipf("line %d: invalid GSS code %q", r.Line, c)
					}
					return []any{rc.boundaryType, c, n, nullableName(r.Get(welsh)), rc.version, src, rc.importedAt}, nil
				}
			})
		},
	}
}

// registerCodes adds the run's codes to the code register. Codes already
// registered under another type are left alone.
func registerCodes(ctx context.Context, s *store.Store, table, boundaryType string) error {
	q := fmt.Sprintf(`INSERT INTO %s (gss_code, boundary_type)
		SELECT DISTINCT gss_code, boundary_type FROM %s WHERE boundary_type = ?
		ON CONFLICT (gss_code) DO NOTHING`,
		pq.QuoteIdentifier(geodata.GSSCodesTable), pq.QuoteIdentifier(table))
	if err := s.Exec(ctx, q, boundaryType); err != nil {
		return fmt.Errorf("register %s codes: %w", boundaryType, err)
	}
	return nil
}

var geometryColumns = []string{
	"boundary_type", "gss_code", "name", "name_welsh", "geometry_type", "geometry", "srid",
	"min_x", "min_y", "max_x", "max_y", "area_hectares", "properties",
	"version_date", "source", "imported_at",
}

// areaUnit says how an area property is measured.
type areaUnit int

const (
	hectares areaUnit = iota
	squareMetres
	// unknownUnit is hectares unless the value is implausibly large.
	unknownUnit
)

// areaKeys are the property names ONS and ArcGIS exports use for area, in
// order of preference. ArcGIS shape areas are always square metres.
var areaKeys = []struct {
	name string
	unit areaUnit
}{
	{"AREAEHECT", hectares},
	{"AREACHECT", hectares},
	{"AREALHECT", hectares},
	{"area_ha", hectares},
	{"hectares", hectares},
	{"Shape__Area", squareMetres},
	{"Shape_Area", squareMetres},
	{"SHAPE_Area", squareMetres},
	{"st_area(shape)", squareMetres},
	{"area", unknownUnit},
}

// Generic areas above this are square metres; no UK boundary is 3M hectares.
const maxHectares = 3_000_000

// propertyKey finds a feature property by pattern, then by literal
// fallbacks compared case-insensitively.
func propertyKey(props map[string]any, re *regexp.Regexp, fallbacks ...string) (string, bool) {
	best, bestNum := "", -1
	if re != nil {
		for k := range props {
			if !re.MatchString(k) {
				continue
			}
			// Highest year wins; ties break on name for determinism.
			if n := trailingYear(k); n > bestNum || (n == bestNum && k > best) {
				best, bestNum = k, n
			}
		}
		if best != "" {
			return best, true
		}
	}
	for _, f := range fallbacks {
		if _, ok := props[f]; ok {
			return f, true
		}
	}
	for _, f := range fallbacks {
		for k := range props {
			if strings.EqualFold(k, f) {
				return k, true
			}
		}
	}
	return "", false
}

var yearRe = regexp.MustCompile(`\d{2}`)

func trailingYear(k string) int {
	m := yearRe.FindAllString(k, -1)
	if len(m) == 0 {
		return -1
	}
	last := m[len(m)-1]
	return int(last[0]-'0')*10 + int(last[1]-'0')
}

func areaHectares(props map[string]any) any {
	for _, k := range areaKeys {
		v, ok := props[k.name]
		if !ok {
			continue
		}
		f, ok := toFloat(v)
		if !ok || f < 0 {
			continue
		}
		if k.unit == squareMetres || (k.unit == unknownUnit && f > maxHectares) {
			f /= 10_000
		}
		return f
	}
	return nil
}

type geometryWire struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type bbox struct{ minX, minY, maxX, maxY float64 }

// ringsBBox flattens every ring of a polygon or multipolygon.
func ringsBBox(typ string, coords json.RawMessage) (bbox, error) {
	var rings [][][]float64
	switch typ {
	case "Polygon":
		if err := json.Unmarshal(coords, &rings); err != nil {
			return bbox{}, transformf("polygon coordinates: %v", err)
		}
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(coords, &polys); err != nil {
			return bbox{}, transformf("multipolygon coordinates: %v", err)
		}
		for _, p := range polys {
			rings = append(rings, p...)
		}
	}

	b := bbox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	points := 0
	for _, ring := range rings {
		for _, pt := range ring {
			if len(pt) < 2 {
				return bbox{}, transformf("position with %d values", len(pt))
			}
			b.minX, b.maxX = math.Min(b.minX, pt[0]), math.Max(b.maxX, pt[0])
			b.minY, b.maxY = math.Min(b.minY, pt[1]), math.Max(b.maxY, pt[1])
			points++
		}
	}
	if points == 0 {
		return bbox{}, transformf("%s has no positions", typ)
	}
	return b, nil
}

func polygonsPlan(rc rowContext) plan {
	p := regexp.QuoteMeta(rc.prefix)
	codeRe := columnPattern(p + `\d{2}CD`)
	nameRe := columnPattern(p + `\d{2}NM`)
	welshRe := columnPattern(p + `\d{2}NMW`)

	return plan{
		target: batch.Target{
			Columns:   geometryColumns,
			Conflict:  []string{"boundary_type", "gss_code"},
			NewerOnly: "version_date",
		},
		open: func(path string, opts source.Options) (recordSet, error) {
			g, err := source.OpenGeoJSON(path, opts)
			if err != nil {
				return recordSet{}, err
			}
			srid, _ := g.CRS()
			src := filepath.Base(path)

			return geoJSONRecords(g, func(f source.Feature) ([]any, error) {
				var code string
				if k, ok := propertyKey(f.Properties, codeRe, "code", "gss_code", "GSS_CODE", "areacd", "id"); ok {
					code = normalizeCode(toString(f.Properties[k]))
				}
				if code == "" && len(f.ID) > 0 {
					var id string
					if json.Unmarshal(f.ID, &id) == nil {
						code = normalizeCode(id)
					}
				}
				if code == "" {
					return nil, skipf("feature %d: no code", f.Index)
				}
				if !isGSS(code) {
					return nil, skipf("feature %d: invalid GSS code %q", f.Index, code)
				}
				if !f.HasGeometry() {
					return nil, skipf("feature %d (%s): null geometry", f.Index, code)
				}

				var geom geometryWire
				if err := json.Unmarshal(f.Geometry, &geom); err != nil {
					return nil, transformf("feature %d (%s): geometry: %v", f.Index, code, err)
				}
				if geom.Type != "Polygon" && geom.Type != "MultiPolygon" {
					return nil, skipf("feature %d (%s): unsupported geometry %q", f.Index, code, geom.Type)
				}
				box, err := ringsBBox(geom.Type, geom.Coordinates)
				if err != nil {
					return nil, err
				}

				var compact bytes.Buffer
				if err := json.Compact(&compact, f.Geometry); err != nil {
					return nil, transformf("feature %d (%s): geometry: %v", f.Index, code, err)
				}
				props, err := json.Marshal(f.Properties)
				if err != nil {
					return nil, transformf("feature %d (%s): properties: %v", f.Index, code, err)
				}

				var name, welsh any
				if k, ok := propertyKey(f.Properties, nameRe, "name", "areanm"); ok {
					name = nullableName(toString(f.Properties[k]))
				}
				if k, ok := propertyKey(f.Properties, welshRe); ok {
					welsh = nullableName(toString(f.Properties[k]))
				}

				return []any{
					rc.boundaryType, code, name, welsh, geom.Type, compact.String(), srid,
					box.minX, box.minY, box.maxX, box.maxY, areaHectares(f.Properties), string(props),
					rc.version, src, rc.importedAt,
				}, nil
			}), nil
		},
	}
}
