package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/EmpoweredVote/geo-ingest/internal/importer"
	"github.com/EmpoweredVote/geo-ingest/internal/source"
)

// Tolerance is the staging row-count policy of a staged job.
type Tolerance struct {
	Mode string  `yaml:"mode"`
	Band float64 `yaml:"band"`
}

// JobSpec is one entry of a job file.
type JobSpec struct {
	Name    string   `yaml:"name"`
	Dataset string   `yaml:"dataset"`
	Paths   []string `yaml:"paths"`
	// Archive is a zip file extracted before import; Pattern selects the
	// members to import from the extraction directory.
	Archive string `yaml:"archive"`
	Pattern string `yaml:"pattern"`

	BoundaryType string `yaml:"boundary_type"`
	CodePrefix   string `yaml:"code_prefix"`
	Table        string `yaml:"table"`

	// Version is YYYY-MM or YYYY-MM-DD; empty means "from the filename".
	Version   string `yaml:"version"`
	BatchSize int    `yaml:"batch_size"`
	Encoding  string `yaml:"encoding"`
	SkipCount bool   `yaml:"skip_count"`

	ExpectedRows int64     `yaml:"expected_rows"`
	Tolerance    Tolerance `yaml:"tolerance"`
}

// JobFile is the document accepted by "geoimport run".
type JobFile struct {
	Workers int       `yaml:"workers"`
	Jobs    []JobSpec `yaml:"jobs"`
}

// LoadJobs reads and validates a YAML job file.
func LoadJobs(path string) (JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobFile{}, err
	}
	jf, err := ParseJobs(data)
	if err != nil {
		return JobFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return jf, nil
}

// ParseJobs decodes a job file. Unknown keys are rejected.
func ParseJobs(data []byte) (JobFile, error) {
	var jf JobFile
	if err := yaml.UnmarshalWithOptions(data, &jf, yaml.Strict()); err != nil {
		return JobFile{}, err
	}
	if len(jf.Jobs) == 0 {
		return JobFile{}, fmt.Errorf("no jobs defined")
	}
	seen := map[string]bool{}
	// Staged datasets share one staging table, so a file may load each once.
	staged := map[string]string{}
	for i := range jf.Jobs {
		j := &jf.Jobs[i]
		if j.Name == "" {
			j.Name = fmt.Sprintf("job-%d", i+1)
		}
		if seen[j.Name] {
			return JobFile{}, fmt.Errorf("duplicate job name %q", j.Name)
		}
		seen[j.Name] = true
		if err := j.Validate(); err != nil {
			return JobFile{}, fmt.Errorf("job %q: %w", j.Name, err)
		}
		if ds, _ := importer.ParseDataset(j.Dataset); ds.Staged() {
			if prev, ok := staged[ds.String()]; ok {
				return JobFile{}, fmt.Errorf("jobs %q and %q both load %s through its staging table", prev, j.Name, ds)
			}
			staged[ds.String()] = j.Name
		}
	}
	return jf, nil
}

// Validate checks a single job entry.
func (j JobSpec) Validate() error {
	ds, err := importer.ParseDataset(j.Dataset)
	if err != nil {
		return err
	}
	if len(j.Paths) == 0 && j.Archive == "" {
		return fmt.Errorf("one of paths or archive is required")
	}
	if j.Archive != "" && j.Pattern == "" {
		return fmt.Errorf("archive %q needs a pattern", j.Archive)
	}
	switch ds {
	case importer.BoundaryNames, importer.BoundaryPolygons:
		if j.BoundaryType == "" && j.CodePrefix == "" {
			return fmt.Errorf("boundary_type or code_prefix is required for %s", ds)
		}
	}
	if ds.Staged() {
		if j.ExpectedRows <= 0 {
			return fmt.Errorf("expected_rows is required for %s", ds)
		}
		if j.Table != "" {
			return fmt.Errorf("table cannot be set for %s: it loads through fixed staging and live tables", ds)
		}
	}
	if err := source.CheckEncoding(j.Encoding); err != nil {
		return err
	}
	if j.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}
	if _, err := j.VersionDate(); err != nil {
		return err
	}
	return nil
}

// VersionDate parses Version. The zero time means "not set".
func (j JobSpec) VersionDate() (time.Time, error) {
	return ParseVersion(j.Version)
}

// ParseVersion accepts YYYY-MM or YYYY-MM-DD and returns the first of that
// month in UTC.
func ParseVersion(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid version %q: want YYYY-MM or YYYY-MM-DD", v)
}
