package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrInvalidMetrics     = errors.New("METRICS_BACKEND must be none or datadog")
)

// MetricsBackend selects where pipeline metrics go.
type MetricsBackend string

const (
	MetricsNone    MetricsBackend = "none"
	MetricsDatadog MetricsBackend = "datadog"
)

// Config holds process configuration for the importer and status feed.
type Config struct {
	DatabaseURL string
	// Schema the geography tables live in (Postgres only).
	Schema string

	LogFile    string
	LogConsole bool
	LogLevel   string

	BatchSize int
	Workers   int
	WorkDir   string

	Metrics      MetricsBackend
	DatadogTags  string
	MetricsFlush time.Duration

	Port        string
	CORSOrigins []string
	// FeedToken guards cancellation on the status feed; empty disables it.
	FeedToken   string
}

// Defaults used when the environment leaves a value unset.
const (
	DefaultSchema    = "geo"
	DefaultLogFile   = "geoimport.log"
	DefaultWorkers   = 3
	DefaultWorkDir   = "data/work"
	DefaultPort      = "5050"
	DefaultBatchSize = 0 // 0 defers to the per-dataset default
)

// LoadFromEnv reads configuration from environment variables.
//
// Environment variables:
//   - DATABASE_URL: Postgres DSN, or sqlite:<path> for local runs (required)
//   - DB_SCHEMA: schema for geography tables (default: geo)
//   - LOG_FILE, LOG_CONSOLE, LOG_LEVEL: logging destination and verbosity
//   - IMPORT_BATCH_SIZE, IMPORT_WORKERS, IMPORT_WORK_DIR: job tuning
//   - METRICS_BACKEND: none or datadog (default: none)
//   - DD_TAGS: extra Datadog tags, comma separated
//   - METRICS_FLUSH_SECONDS: Datadog flush interval (default: 60)
//   - PORT: status feed port (default: 5050)
//   - CORS_ORIGINS: comma separated origins allowed to call the feed
//   - FEED_TOKEN: bearer token required to cancel runs over HTTP
func LoadFromEnv() Config {
	return Config{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Schema:       envString("DB_SCHEMA", DefaultSchema),
		LogFile:      envString("LOG_FILE", DefaultLogFile),
		LogConsole:   envBool("LOG_CONSOLE", true),
		LogLevel:     envString("LOG_LEVEL", "info"),
		BatchSize:    envInt("IMPORT_BATCH_SIZE", DefaultBatchSize),
		Workers:      envInt("IMPORT_WORKERS", DefaultWorkers),
		WorkDir:      envString("IMPORT_WORK_DIR", DefaultWorkDir),
		Metrics:      MetricsBackend(strings.ToLower(envString("METRICS_BACKEND", string(MetricsNone)))),
		DatadogTags:  os.Getenv("DD_TAGS"),
		MetricsFlush: time.Duration(envInt("METRICS_FLUSH_SECONDS", 60)) * time.Second,
		Port:         envString("PORT", DefaultPort),
		CORSOrigins:  envList("CORS_ORIGINS"),
		FeedToken:    os.Getenv("FEED_TOKEN"),
	}
}

// Validate checks that the configuration can be used to run imports.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	switch c.Metrics {
	case MetricsNone, MetricsDatadog:
	default:
		return ErrInvalidMetrics
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
