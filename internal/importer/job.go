package importer

import (
	"errors"
	"fmt"
	"time"

	"github.com/EmpoweredVote/geo-ingest/internal/runs"
	"github.com/EmpoweredVote/geo-ingest/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrCancelled ends a run whose cancellation was requested.
	ErrCancelled = errors.New("import cancelled")
	ErrNoPaths   = errors.New("job has no source paths")

	// errSkipped marks a record rejected for a defect in the source data.
	errSkipped = errors.New("skipped")
	// errTransform marks a record whose derived values could not be
	// computed.
	errTransform = errors.New("transform failed")
)

// Job describes one dataset import.
type Job struct {
	Dataset Dataset
	Paths   []string
	// Table overrides the destination table, e.g. for staging loads.
	Table        string
	BoundaryType string
	CodePrefix   string
	// Version is the vintage; zero means "from the first file name".
	Version   time.Time
	BatchSize int
	// SkipCount skips the counting pre-pass; progress then has no total.
	SkipCount bool
	Encoding  string
}

// Deps are the collaborators a run writes to.
type Deps struct {
	Store   *store.Store
	Tracker *runs.Tracker
	Log     zerolog.Logger
}

// Stats are the per-run record counters. Every record read ends up in
// exactly one of the outcome counters.
type Stats struct {
	Total            int64 `json:"total"`
	Successful       int64 `json:"successful"`
	Skipped          int64 `json:"skipped"`
	CoordinateErrors int64 `json:"coordinate_errors"`
	TransformErrors  int64 `json:"transform_errors"`
	WriteErrors      int64 `json:"write_errors"`
	Duplicates       int64 `json:"duplicates"`
}

// Reconciled reports whether Total equals the sum of the outcome counters.
func (s Stats) Reconciled() bool {
	return s.Total == s.Successful+s.Skipped+s.CoordinateErrors+s.TransformErrors+s.WriteErrors+s.Duplicates
}

// Clean reports whether every record was written.
func (s Stats) Clean() bool {
	return s.Skipped+s.CoordinateErrors+s.TransformErrors+s.WriteErrors+s.Duplicates == 0
}

// Snapshot is an immutable view of a run's progress.
type Snapshot struct {
	Stats
	Expected int64         `json:"expected"`
	Files    int           `json:"files"`
	Elapsed  time.Duration `json:"elapsed"`
}

func (s Snapshot) counts() runs.Counts {
	return runs.Counts{
		Expected:         s.Expected,
		Total:            s.Total,
		Successful:       s.Successful,
		Skipped:          s.Skipped,
		CoordinateErrors: s.CoordinateErrors,
		TransformErrors:  s.TransformErrors,
		WriteErrors:      s.WriteErrors,
		Duplicates:       s.Duplicates,
	}
}

// Result is what a finished run reports back to its caller.
type Result struct {
	RunID       uuid.UUID
	Dataset     Dataset
	Version     time.Time
	Outcome     runs.Outcome
	Snapshot    Snapshot
	RecordCount int64
	Err         error
}

// StageError records the stage a run failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }
