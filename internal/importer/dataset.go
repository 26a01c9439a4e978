package importer

import (
	"fmt"
	"strings"

	"github.com/EmpoweredVote/geo-ingest/internal/geodata"
)

// Dataset identifies one kind of source file and its destination table.
type Dataset int

const (
	PropertyDirectory Dataset = iota + 1
	PostcodeLookup
	BoundaryNames
	BoundaryPolygons
	WardHierarchy
	ParishHierarchy
)

var datasetNames = map[Dataset]string{
	PropertyDirectory: "onsud",
	PostcodeLookup:    "nspl",
	BoundaryNames:     "boundary_names",
	BoundaryPolygons:  "boundary_polygons",
	WardHierarchy:     "ward_hierarchy",
	ParishHierarchy:   "parish_hierarchy",
}

// Datasets lists every dataset in declaration order.
func Datasets() []Dataset {
	return []Dataset{PropertyDirectory, PostcodeLookup, BoundaryNames, BoundaryPolygons, WardHierarchy, ParishHierarchy}
}

func ParseDataset(s string) (Dataset, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range datasetNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown dataset %q", s)
}

func (d Dataset) String() string {
	if name, ok := datasetNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dataset(%d)", int(d))
}

// Staged reports whether the dataset loads into a staging table that is
// swapped in, rather than being upserted into its live table.
func (d Dataset) Staged() bool {
	return d == PropertyDirectory
}

// Table is the live destination table.
func (d Dataset) Table() string {
	switch d {
	case PropertyDirectory:
		return geodata.PropertiesTable
	case PostcodeLookup:
		return geodata.Postcode{}.TableName()
	case BoundaryNames:
		return geodata.BoundaryName{}.TableName()
	case BoundaryPolygons:
		return geodata.BoundaryGeometry{}.TableName()
	case WardHierarchy:
		return geodata.WardHierarchy{}.TableName()
	case ParishHierarchy:
		return geodata.ParishHierarchy{}.TableName()
	}
	return ""
}

// DefaultBatchSize is used when a job does not set one. Polygon rows are
// large, so their batches are small.
func (d Dataset) DefaultBatchSize() int {
	if d == BoundaryPolygons {
		return 500
	}
	return 5000
}

// boundaryPrefixes maps a boundary type to the ONS column prefix used in
// its files, e.g. WD24CD for wards.
var boundaryPrefixes = map[string]string{
	"country": "CTRY",
	"region":  "RGN",
	"county":  "CTY",
	"lad":     "LAD",
	"ced":     "CED",
	"ward":    "WD",
	"parish":  "PAR",
	"pcon":    "PCON",
	"lsoa":    "LSOA",
	"msoa":    "MSOA",
	"oa":      "OA",
	"pfa":     "PFA",
	"cauth":   "CAUTH",
	"utla":    "UTLA",
	"ltla":    "LTLA",
	"nawc":    "NAWC",
	"eer":     "EER",
	"icb":     "ICB",
	"cis":     "CIS",
	"bua":     "BUA",
	"parncp":  "PARNCP",
	"spc":     "SPC",
	"spr":     "SPR",
	"senedd":  "SENC",
}

// CodePrefix resolves the column prefix for a boundary type. An explicit
// override wins; unknown types fall back to their upper-case name.
func CodePrefix(boundaryType, override string) string {
	if override != "" {
		return strings.ToUpper(override)
	}
	bt := strings.ToLower(strings.TrimSpace(boundaryType))
	if p, ok := boundaryPrefixes[bt]; ok {
		return p
	}
	return strings.ToUpper(bt)
}
