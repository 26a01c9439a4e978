// Package geodata holds the geography reference tables the importers fill.
package geodata

import (
	"time"
)

// GSSCodesTable is the foreign key target for area codes.
const GSSCodesTable = "gss_codes"

// BoundaryName maps a GSS code to its English and Welsh names.
type BoundaryName struct {
	BoundaryType string    `gorm:"primaryKey" json:"boundary_type"`
	GSSCode      string    `gorm:"primaryKey" json:"gss_code"`
	Name         string    `gorm:"not null" json:"name"`
	NameWelsh    *string   `json:"name_welsh,omitempty"`
	VersionDate  time.Time `gorm:"type:date;not null" json:"version_date"`
	Source       string    `json:"source"`
	ImportedAt   time.Time `json:"imported_at"`
}

func (BoundaryName) TableName() string {
	return "boundary_names"
}

// GSSCode lists every code the names importer has seen, once. A code such as
// a unitary authority appears under several boundary types; BoundaryType is
// the first one it was imported under.
type GSSCode struct {
	GSSCode      string `gorm:"primaryKey" json:"gss_code"`
	BoundaryType string `gorm:"not null" json:"boundary_type"`
}

func (GSSCode) TableName() string {
	return GSSCodesTable
}

// BoundaryGeometry is one boundary polygon with its bounding box. Geometry
// and Properties hold GeoJSON text.
type BoundaryGeometry struct {
	BoundaryType string    `gorm:"primaryKey" json:"boundary_type"`
	GSSCode      string    `gorm:"primaryKey" json:"gss_code"`
	Name         *string   `json:"name,omitempty"`
	NameWelsh    *string   `json:"name_welsh,omitempty"`
	GeometryType string    `gorm:"not null" json:"geometry_type"`
	Geometry     string    `gorm:"type:jsonb;not null" json:"geometry"`
	SRID         int       `gorm:"column:srid;not null" json:"srid"`
	MinX         float64   `json:"min_x"`
	MinY         float64   `json:"min_y"`
	MaxX         float64   `json:"max_x"`
	MaxY         float64   `json:"max_y"`
	AreaHectares *float64  `json:"area_hectares,omitempty"`
	Properties   string    `gorm:"type:jsonb" json:"properties"`
	VersionDate  time.Time `gorm:"type:date;not null" json:"version_date"`
	Source       string    `json:"source"`
	ImportedAt   time.Time `json:"imported_at"`
}

func (BoundaryGeometry) TableName() string {
	return "boundary_geometries"
}

// Postcode is one NSPL row.
type Postcode struct {
	Postcode       string    `gorm:"primaryKey" json:"postcode"`
	Easting        *int64    `json:"easting,omitempty"`
	Northing       *int64    `json:"northing,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Quality        *int      `json:"quality,omitempty"`
	DateIntroduced *string   `json:"date_introduced,omitempty"` // YYYYMM
	DateTerminated *string   `json:"date_terminated,omitempty"`
	UserType       *int      `json:"user_type,omitempty"`
	CountryCode    *string   `json:"country_code,omitempty"`
	RegionCode     *string   `json:"region_code,omitempty"`
	CountyCode     *string   `json:"county_code,omitempty"`
	LADCode        *string   `gorm:"column:lad_code;index" json:"lad_code,omitempty"`
	WardCode       *string   `gorm:"index" json:"ward_code,omitempty"`
	ParishCode     *string   `json:"parish_code,omitempty"`
	PConCode       *string   `gorm:"column:pcon_code" json:"pcon_code,omitempty"`
	LSOACode       *string   `gorm:"column:lsoa_code" json:"lsoa_code,omitempty"`
	VersionDate    time.Time `gorm:"type:date;not null" json:"version_date"`
	ImportedAt     time.Time `json:"imported_at"`
}

func (Postcode) TableName() string {
	return "postcodes"
}

// WardHierarchy links a ward to its district and, in two-tier areas, its
// county and electoral division. DivisionCode is empty when there is none.
type WardHierarchy struct {
	WardCode     string    `gorm:"primaryKey" json:"ward_code"`
	DivisionCode string    `gorm:"primaryKey;default:''" json:"division_code"`
	VersionDate  time.Time `gorm:"primaryKey;type:date" json:"version_date"`
	WardName     *string   `json:"ward_name,omitempty"`
	LADCode      string    `gorm:"column:lad_code;not null;index" json:"lad_code"`
	LADName      *string   `gorm:"column:lad_name" json:"lad_name,omitempty"`
	CountyCode   *string   `json:"county_code,omitempty"`
	CountyName   *string   `json:"county_name,omitempty"`
	DivisionName *string   `json:"division_name,omitempty"`
	ImportedAt   time.Time `json:"imported_at"`
}

func (WardHierarchy) TableName() string {
	return "ward_hierarchy"
}

// ParishHierarchy links a parish (or non-civil-parished area) to its ward
// and district.
type ParishHierarchy struct {
	ParishCode  string    `gorm:"primaryKey" json:"parish_code"`
	WardCode    string    `gorm:"primaryKey" json:"ward_code"`
	VersionDate time.Time `gorm:"primaryKey;type:date" json:"version_date"`
	ParishName  *string   `json:"parish_name,omitempty"`
	WardName    *string   `json:"ward_name,omitempty"`
	LADCode     string    `gorm:"column:lad_code;not null;index" json:"lad_code"`
	LADName     *string   `gorm:"column:lad_name" json:"lad_name,omitempty"`
	ImportedAt  time.Time `json:"imported_at"`
}

func (ParishHierarchy) TableName() string {
	return "parish_hierarchy"
}
