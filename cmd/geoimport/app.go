package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/EmpoweredVote/geo-ingest/internal/config"
	"github.com/EmpoweredVote/geo-ingest/internal/db"
	"github.com/EmpoweredVote/geo-ingest/internal/geodata"
	"github.com/EmpoweredVote/geo-ingest/internal/importer"
	"github.com/EmpoweredVote/geo-ingest/internal/logs"
	"github.com/EmpoweredVote/geo-ingest/internal/metrics"
	"github.com/EmpoweredVote/geo-ingest/internal/metrics/datadog"
	"github.com/EmpoweredVote/geo-ingest/internal/runs"
	"github.com/EmpoweredVote/geo-ingest/internal/store"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	db      *gorm.DB
	deps    importer.Deps
	closers []io.Closer
}

func setup(ctx context.Context) (*app, error) {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, logCloser, err := logs.New(cfg.LogFile, cfg.LogConsole, logs.ParseLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	a := &app{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	if cfg.Metrics == config.MetricsDatadog {
		b, err := datadog.NewBackend(ctx, datadog.Options{
			Tags:       datadog.ParseTagsCSV(cfg.DatadogTags),
			FlushEvery: cfg.MetricsFlush,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("datadog metrics: %w", err)
		}
		metrics.SetBackend(b)
		// Closed before the log file so a final flush can still log.
		a.closers = append([]io.Closer{b}, a.closers...)
	}

	gdb, err := db.Open(cfg.DatabaseURL, cfg.Schema, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.db = gdb
	a.deps = importer.Deps{
		Store:   store.New(gdb, log),
		Tracker: runs.NewTracker(gdb, log),
		Log:     log,
	}
	return a, nil
}

func (a *app) migrate(ctx context.Context) error {
	if err := geodata.Migrate(ctx, a.db, a.log); err != nil {
		return err
	}
	return runs.Migrate(a.db)
}

func (a *app) close() {
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	for _, c := range a.closers {
		c.Close()
	}
}
