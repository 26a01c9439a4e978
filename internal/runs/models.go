package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the lifecycle state of an import run.
type Status string

const (
	StatusPending   Status = "pending" // loaded, waiting to go live
	StatusImporting Status = "importing"
	StatusCurrent   Status = "current"
	StatusArchived  Status = "archived"
	StatusFailed    Status = "failed"
)

// Outcome is how a finished run went.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// ImportRun is one attempt at importing one dataset vintage.
type ImportRun struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Dataset string    `gorm:"not null;index:idx_import_runs_dataset_version" json:"dataset"`
	Version string    `gorm:"not null;index:idx_import_runs_dataset_version" json:"version"` // YYYY-MM-DD
	Status  Status    `gorm:"type:text;not null;index" json:"status"`
	Outcome Outcome   `gorm:"type:text" json:"outcome,omitempty"`
	Stage   string    `json:"stage,omitempty"`
	Notes   string    `json:"notes,omitempty"`

	SourcePath     string `json:"source_path,omitempty"`
	SourceChecksum string `json:"source_checksum,omitempty"`

	ExpectedRows     int64 `json:"expected_rows"`
	TotalRows        int64 `json:"total_rows"`
	Successful       int64 `json:"successful"`
	Skipped          int64 `json:"skipped"`
	CoordinateErrors int64 `json:"coordinate_errors"`
	TransformErrors  int64 `json:"transform_errors"`
	WriteErrors      int64 `json:"write_errors"`
	Duplicates       int64 `json:"duplicates"`
	RecordCount      int64 `json:"record_count"`

	CancelRequested bool `gorm:"not null;default:false" json:"cancel_requested"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (ImportRun) TableName() string {
	return "import_runs"
}

func (r *ImportRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Finished reports whether the run reached a terminal status.
func (r *ImportRun) Finished() bool {
	return r.FinishedAt != nil
}

// Counts are the per-run record counters.
type Counts struct {
	Expected         int64
	Total            int64
	Successful       int64
	Skipped          int64
	CoordinateErrors int64
	TransformErrors  int64
	WriteErrors      int64
	Duplicates       int64
}

func (c Counts) columns() map[string]any {
	return map[string]any{
		"expected_rows":     c.Expected,
		"total_rows":        c.Total,
		"successful":        c.Successful,
		"skipped":           c.Skipped,
		"coordinate_errors": c.CoordinateErrors,
		"transform_errors":  c.TransformErrors,
		"write_errors":      c.WriteErrors,
		"duplicates":        c.Duplicates,
	}
}

// Migrate creates or updates the import_runs table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ImportRun{})
}
