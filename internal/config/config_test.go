package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"DB_SCHEMA", "IMPORT_WORKERS", "METRICS_BACKEND", "PORT", "IMPORT_BATCH_SIZE"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", "sqlite:test.db")

	cfg := LoadFromEnv()
	if cfg.Schema != DefaultSchema || cfg.Workers != DefaultWorkers || cfg.Port != DefaultPort {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Metrics != MetricsNone {
		t.Errorf("Metrics = %q", cfg.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/geo")
	t.Setenv("IMPORT_WORKERS", "5")
	t.Setenv("IMPORT_BATCH_SIZE", "not-a-number")
	t.Setenv("METRICS_BACKEND", "Datadog")
	t.Setenv("METRICS_FLUSH_SECONDS", "15")

	cfg := LoadFromEnv()
	if cfg.Workers != 5 || cfg.BatchSize != DefaultBatchSize {
		t.Errorf("Workers=%d BatchSize=%d", cfg.Workers, cfg.BatchSize)
	}
	if cfg.Metrics != MetricsDatadog || cfg.MetricsFlush != 15*time.Second {
		t.Errorf("Metrics=%q flush=%v", cfg.Metrics, cfg.MetricsFlush)
	}
}

func TestValidate(t *testing.T) {
	if err := (Config{}).Validate(); !errors.Is(err, ErrMissingDatabaseURL) {
		t.Errorf("err = %v, want ErrMissingDatabaseURL", err)
	}
	if err := (Config{DatabaseURL: "x", Metrics: "statsd"}).Validate(); !errors.Is(err, ErrInvalidMetrics) {
		t.Errorf("err = %v, want ErrInvalidMetrics", err)
	}
}

const jobsYAML = `
workers: 2
jobs:
  - name: ward-names
    dataset: boundary_names
    boundary_type: ward
    paths: [data/WD24_LAD24_UK_LU.csv]
  - name: onsud
    dataset: onsud
    archive: data/ONSUD_MAY_2025.zip
    pattern: "Data/ONSUD_*.csv"
    expected_rows: 41000000
    version: 2025-05
    tolerance:
      mode: band
      band: 0.001
`

func TestParseJobs(t *testing.T) {
	jf, err := ParseJobs([]byte(jobsYAML))
	if err != nil {
		t.Fatalf("ParseJobs: %v", err)
	}
	if jf.Workers != 2 || len(jf.Jobs) != 2 {
		t.Fatalf("parsed %+v", jf)
	}
	onsud := jf.Jobs[1]
	if onsud.ExpectedRows != 41000000 || onsud.Tolerance.Mode != "band" || onsud.Tolerance.Band != 0.001 {
		t.Errorf("onsud = %+v", onsud)
	}
	v, err := onsud.VersionDate()
	if err != nil || v.Format(time.DateOnly) != "2025-05-01" {
		t.Errorf("VersionDate = %v, %v", v, err)
	}
}

func TestParseJobs_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown dataset":         "jobs:\n  - dataset: cadastre\n    paths: [a.csv]\n",
		"no source":               "jobs:\n  - dataset: nspl\n",
		"staged without expected": "jobs:\n  - dataset: onsud\n    paths: [a.csv]\n",
		"names without type":      "jobs:\n  - dataset: boundary_names\n    paths: [a.csv]\n",
		"staged table override":   "jobs:\n  - dataset: onsud\n    paths: [a.csv]\n    expected_rows: 1\n    table: mine\n",
		"utf-16 by name":          "jobs:\n  - dataset: nspl\n    paths: [a.csv]\n    encoding: utf-16\n",
		"two staged loads":        "jobs:\n  - {name: a, dataset: onsud, paths: [a.csv], expected_rows: 1}\n  - {name: b, dataset: onsud, paths: [b.csv], expected_rows: 1}\n",
		"bad version":             "jobs:\n  - dataset: nspl\n    paths: [a.csv]\n    version: May 2025\n",
		"unknown key":             "jobs:\n  - dataset: nspl\n    paths: [a.csv]\n    colour: red\n",
		"empty":                   "workers: 1\n",
		"duplicate names":         "jobs:\n  - {name: a, dataset: nspl, paths: [a.csv]}\n  - {name: a, dataset: nspl, paths: [b.csv]}\n",
	}
	for name, doc := range tests {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			if _, err := ParseJobs([]byte(doc)); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func TestParseJobs_CodePrefixOnly(t *testing.T) {
	jf, err := ParseJobs([]byte("jobs:\n  - dataset: boundary_names\n    code_prefix: WD\n    paths: [a.csv]\n"))
	if err != nil {
		t.Fatalf("ParseJobs: %v", err)
	}
	if jf.Jobs[0].CodePrefix != "WD" {
		t.Errorf("job = %+v", jf.Jobs[0])
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("2024-12-17")
	if err != nil || v.Format(time.DateOnly) != "2024-12-01" {
		t.Errorf("ParseVersion = %v, %v", v, err)
	}
	if v, err := ParseVersion(""); err != nil || !v.IsZero() {
		t.Errorf("empty version = %v, %v", v, err)
	}
}
