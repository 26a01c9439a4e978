package geodata

import (
	"github.com/EmpoweredVote/geo-ingest/internal/store"
)

// Physical names of the property directory generations.
const (
	PropertiesTable         = "properties"
	PropertiesStagingTable  = "properties_staging"
	PropertiesRetainedTable = "properties_old"
)

// PropertyTable is the shape shared by live, staging and retained property
// tables. It is kept out of AutoMigrate because three physical copies exist
// and are renamed into one another.
var PropertyTable = store.TableDef{
	Columns: []store.ColumnDef{
		{Name: "uprn", Type: store.BigInt, NotNull: true},
		{Name: "postcode", Type: store.Text, NotNull: true},
		{Name: "easting", Type: store.BigInt},
		{Name: "northing", Type: store.BigInt},
		{Name: "latitude", Type: store.Float},
		{Name: "longitude", Type: store.Float},
		{Name: "country_code", Type: store.Text},
		{Name: "region_code", Type: store.Text},
		{Name: "county_code", Type: store.Text},
		{Name: "lad_code", Type: store.Text, NotNull: true},
		{Name: "ced_code", Type: store.Text},
		{Name: "ward_code", Type: store.Text},
		{Name: "parish_code", Type: store.Text},
		{Name: "pcon_code", Type: store.Text},
		{Name: "lsoa_code", Type: store.Text},
		{Name: "version_date", Type: store.Date, NotNull: true},
		{Name: "imported_at", Type: store.Timestamp},
	},
	PrimaryKey: []string{"uprn"},
}

// PropertyIndexes are built on the live table after a swap.
var PropertyIndexes = []store.IndexDef{
	{Name: "idx_properties_postcode", Columns: []string{"postcode"}},
	{Name: "idx_properties_lad_code", Columns: []string{"lad_code"}},
	{Name: "idx_properties_ward_code", Columns: []string{"ward_code"}},
	{Name: "idx_properties_lat_lng", Columns: []string{"latitude", "longitude"}},
}

// PropertyForeignKeys tie live property codes to the code register. Staging
// carries none so raw codes load before the lookups are consistent.
var PropertyForeignKeys = []store.ForeignKeyDef{
	{Name: "fk_properties_lad", Columns: []string{"lad_code"}, RefTable: GSSCodesTable, RefColumns: []string{"gss_code"}},
	{Name: "fk_properties_ward", Columns: []string{"ward_code"}, RefTable: GSSCodesTable, RefColumns: []string{"gss_code"}},
}
