package importer

import (
	"fmt"
	"math"

	"github.com/EmpoweredVote/geo-ingest/internal/batch"
	"github.com/EmpoweredVote/geo-ingest/internal/geo"
	"github.com/EmpoweredVote/geo-ingest/internal/source"
)

// NSPL writes 99.999999 into lat/long when a postcode has no grid
// reference.
const nsplNoLatLng = 99.999999

// Grid quality indicator for "no grid reference available".
const gridQualityNone = "9"

var postcodeColumns = []string{
	"postcode", "easting", "northing", "latitude", "longitude", "quality",
	"date_introduced", "date_terminated", "user_type",
	"country_code", "region_code", "county_code", "lad_code", "ward_code",
	"parish_code", "pcon_code", "lsoa_code",
	"version_date", "imported_at",
}

// fileLatLng returns the position carried in the file when it is real.
func fileLatLng(lat, lng string) (geo.LatLng, bool) {
	la, okA := parseFloat(lat)
	lo, okO := parseFloat(lng)
	if !okA || !okO || math.Abs(la-nsplNoLatLng) < 1e-6 {
		return geo.LatLng{}, false
	}
	p := geo.LatLng{Lat: la, Lng: lo}
	return p, p.Valid()
}

func postcodePlan(rc rowContext) plan {
	return plan{
		target: batch.Target{
			Columns:  postcodeColumns,
			Conflict: []string{"postcode"},
		},
		open: func(path string, opts source.Options) (recordSet, error) {
			return openCSV(path, opts, func(cs *columnSet) func(source.Row) ([]any, error) {
				pc := cs.need("pcds", "pcds")
				east := cs.need("oseast1m", "oseast1m", "east1m")
				north := cs.need("osnrth1m", "osnrth1m", "nrth1m")
				lad := cs.need("laua", "laua", `lad\d{2}cd`)
				quality := cs.find("osgrdind")
				lat, lng := cs.find("lat"), cs.find("long")
				intro, term := cs.find("dointr"), cs.find("doterm")
				usertype := cs.find("usertype", "usrtypind")
				codes := []int{
					cs.find("ctry", `ctry\d{2}cd`),
					cs.find("rgn", `rgn\d{2}cd`),
					cs.find("cty", `cty\d{2}cd`),
					lad,
					cs.find("ward", `wd\d{2}cd`),
					cs.find("parish", `parncp\d{2}cd`, `par\d{2}cd`),
					cs.find("pcon", `pcon\d{2}cd`),
					cs.find(`lsoa\d{2}`, `lsoa\d{2}cd`),
				}

				return func(r source.Row) ([]any, error) {
					postcode, ok := normalizePostcode(r.Get(pc))
					if !ok {
						return nil, skipf("line %d: invalid postcode %q", r.Line, r.Get(pc))
					}

					var easting, northing, latitude, longitude any
					e, okE := parseFloat(r.Get(east))
					n, okN := parseFloat(r.Get(north))
					if okE && okN {
						easting, northing = int64(math.Round(e)), int64(math.Round(n))
					}
					noGrid := r.Get(quality) == gridQualityNone || (r.Get(east) == "" && r.Get(north) == "")

					switch ll, fromFile := fileLatLng(r.Get(lat), r.Get(lng)); {
					case fromFile:
						latitude, longitude = ll.Lat, ll.Lng
					case noGrid:
						// Stored without a position.
					case okE && okN:
						p, err := geo.ToWGS84(e, n)
						if err != nil {
							return nil, fmt.Errorf("line %d: %s (%v, %v): %w", r.Line, postcode, e, n, err)
						}
						latitude, longitude = p.Lat, p.Lng
					default:
						return nil, fmt.Errorf("line %d: %s: unusable grid reference: %w", r.Line, postcode, geo.ErrInvalidCoordinate)
					}

					row := make([]any, 0, len(postcodeColumns))
					row = append(row, postcode, easting, northing, latitude, longitude,
						nullableInt(r.Get(quality)), nullable(r.Get(intro)), nullable(r.Get(term)),
						nullableInt(r.Get(usertype)))
					for _, idx := range codes {
						row = append(row, areaCode(r.Get(idx)))
					}
					return append(row, rc.version, rc.importedAt), nil
				}
			})
		},
	}
}
