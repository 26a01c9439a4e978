package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/EmpoweredVote/geo-ingest/internal/config"
	"github.com/EmpoweredVote/geo-ingest/internal/files"
	"github.com/EmpoweredVote/geo-ingest/internal/importer"
	"github.com/EmpoweredVote/geo-ingest/internal/runs"
	"github.com/EmpoweredVote/geo-ingest/internal/swap"
)

// sourcePaths returns the files a job reads, extracting its archive into
// the work directory first. cleanup removes anything extracted.
func (a *app) sourcePaths(ctx context.Context, spec config.JobSpec) (paths []string, cleanup func(), err error) {
	cleanup = func() {}
	for _, p := range spec.Paths {
		ok, err := files.Exists(p)
		if err != nil {
			return nil, cleanup, err
		}
		if !ok {
			return nil, cleanup, fmt.Errorf("source %s does not exist", p)
		}
		paths = append(paths, p)
	}
	if spec.Archive == "" {
		return paths, cleanup, nil
	}

	dest := filepath.Join(a.cfg.WorkDir, jobDir(spec.Name))
	cleanup = func() {
		if err := files.Remove(dest); err != nil {
			a.log.Warn().Err(err).Str("dir", dest).Msg("could not remove extracted files")
		}
	}
	extracted, err := files.ExtractZip(ctx, spec.Archive, dest)
	if err != nil {
		return nil, cleanup, err
	}
	matched, err := files.Glob(dest, spec.Pattern)
	if err != nil {
		return nil, cleanup, err
	}
	if len(matched) == 0 {
		return nil, cleanup, fmt.Errorf("no member of %s matches %q", spec.Archive, spec.Pattern)
	}
	a.log.Info().
		Str("archive", spec.Archive).
		Int("extracted", len(extracted)).
		Int("matched", len(matched)).
		Msg("archive extracted")
	return append(paths, matched...), cleanup, nil
}

func jobDir(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// runJob executes one job and returns its outcome. Staged datasets go
// through the swap loader; everything else is upserted in place.
func (a *app) runJob(ctx context.Context, spec config.JobSpec) (runs.Outcome, error) {
	log := a.log.With().Str("job", spec.Name).Logger()
	ds, err := importer.ParseDataset(spec.Dataset)
	if err != nil {
		return runs.OutcomeFailed, err
	}
	version, err := spec.VersionDate()
	if err != nil {
		return runs.OutcomeFailed, err
	}
	paths, cleanup, err := a.sourcePaths(ctx, spec)
	defer cleanup()
	if err != nil {
		log.Error().Err(err).Msg("could not resolve job sources")
		return runs.OutcomeFailed, err
	}

	batchSize := spec.BatchSize
	if batchSize == 0 {
		batchSize = a.cfg.BatchSize
	}

	if ds.Staged() {
		cfg := swap.PropertyConfig()
		cfg.Tolerance = swap.Tolerance{Mode: spec.Tolerance.Mode, Band: spec.Tolerance.Band}
		rep, err := swap.NewLoader(a.deps, cfg).Load(ctx, swap.Params{
			Paths:     paths,
			Version:   version,
			Expected:  spec.ExpectedRows,
			BatchSize: batchSize,
			Encoding:  spec.Encoding,
			SkipCount: spec.SkipCount,
		})
		for _, f := range rep.IndexFailures {
			log.Warn().Err(f.Err).Str("object", f.Name).Msg("live table is missing an index or constraint")
		}
		if err != nil {
			return runs.OutcomeFailed, err
		}
		return rep.Outcome, nil
	}

	res, err := importer.Import(ctx, a.deps, importer.Job{
		Dataset:      ds,
		Paths:        paths,
		Table:        spec.Table,
		BoundaryType: spec.BoundaryType,
		CodePrefix:   spec.CodePrefix,
		Version:      version,
		BatchSize:    batchSize,
		SkipCount:    spec.SkipCount,
		Encoding:     spec.Encoding,
	})
	if err != nil {
		return runs.OutcomeFailed, err
	}
	return res.Outcome, nil
}

// worst folds job outcomes into the process outcome.
func worst(outcomes []runs.Outcome) runs.Outcome {
	out := runs.OutcomeSuccess
	for _, o := range outcomes {
		switch o {
		case runs.OutcomeFailed:
			return runs.OutcomeFailed
		case runs.OutcomePartial:
			out = runs.OutcomePartial
		}
	}
	return out
}
