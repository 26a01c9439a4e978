package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/EmpoweredVote/geo-ingest/internal/config"
	"github.com/EmpoweredVote/geo-ingest/internal/runs"
	"github.com/EmpoweredVote/geo-ingest/internal/swap"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// withApp runs fn against a connected app.
func withApp(ctx context.Context, fn func(*app) (runs.Outcome, error)) (runs.Outcome, error) {
	a, err := setup(ctx)
	if err != nil {
		return runs.OutcomeFailed, err
	}
	defer a.close()
	return fn(a)
}

func cmdImport(ctx context.Context, args []string, _ io.Writer) (runs.Outcome, error) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	var (
		spec  config.JobSpec
		paths stringList
	)
	fs.StringVar(&spec.Dataset, "dataset", "", "dataset: onsud, nspl, boundary_names, boundary_polygons, ward_hierarchy, parish_hierarchy")
	fs.Var(&paths, "path", "source file (repeatable; extra arguments are also paths)")
	fs.StringVar(&spec.Archive, "archive", "", "zip archive to extract before importing")
	fs.StringVar(&spec.Pattern, "pattern", "", "glob selecting archive members, e.g. ONSUD_*.csv")
	fs.StringVar(&spec.BoundaryType, "boundary-type", "", "boundary type for boundary datasets, e.g. ward or lad")
	fs.StringVar(&spec.CodePrefix, "code-prefix", "", "override the code prefix stored with boundaries")
	fs.StringVar(&spec.Table, "table", "", "override the destination table")
	fs.StringVar(&spec.Version, "version", "", "release vintage YYYY-MM (default: from the file name)")
	fs.IntVar(&spec.BatchSize, "batch-size", 0, "rows per upsert (default: per dataset)")
	fs.StringVar(&spec.Encoding, "encoding", "", "source encoding override: utf-8, windows-1252 or latin1 (UTF-16 is detected from its BOM)")
	fs.BoolVar(&spec.SkipCount, "skip-count", false, "skip the counting pass")
	fs.Int64Var(&spec.ExpectedRows, "expected", 0, "expected row count for staged datasets")
	fs.StringVar(&spec.Tolerance.Mode, "tolerance", swap.Exact, "row count tolerance: exact, at_least or band")
	fs.Float64Var(&spec.Tolerance.Band, "band", 0, "allowed relative deviation in band mode")
	if err := parse(fs, args); err != nil {
		return runs.OutcomeFailed, err
	}
	spec.Name = spec.Dataset
	spec.Paths = append(paths, fs.Args()...)
	if err := spec.Validate(); err != nil {
		return runs.OutcomeFailed, fmt.Errorf("%w: %v", errUsage, err)
	}

	return withApp(ctx, func(a *app) (runs.Outcome, error) {
		if err := a.migrate(ctx); err != nil {
			return runs.OutcomeFailed, err
		}
		return a.runJob(ctx, spec)
	})
}

func cmdRun(ctx context.Context, args []string, _ io.Writer) (runs.Outcome, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	workers := fs.Int("workers", 0, "parallel jobs (default: job file, then IMPORT_WORKERS)")
	if err := parse(fs, args); err != nil {
		return runs.OutcomeFailed, err
	}
	if fs.NArg() != 1 {
		return runs.OutcomeFailed, fmt.Errorf("%w: run takes one job file", errUsage)
	}
	jf, err := config.LoadJobs(fs.Arg(0))
	if err != nil {
		return runs.OutcomeFailed, fmt.Errorf("%w: %v", errUsage, err)
	}

	return withApp(ctx, func(a *app) (runs.Outcome, error) {
		if err := a.migrate(ctx); err != nil {
			return runs.OutcomeFailed, err
		}
		limit := *workers
		if limit <= 0 {
			limit = jf.Workers
		}
		if limit <= 0 {
			limit = a.cfg.Workers
		}
		if limit <= 0 {
			limit = 1
		}
		a.log.Info().Int("jobs", len(jf.Jobs)).Int("workers", limit).Msg("job file started")

		outcomes := make([]runs.Outcome, len(jf.Jobs))
		var g errgroup.Group
		g.SetLimit(limit)
		for i, spec := range jf.Jobs {
			g.Go(func() error {
				o, err := a.runJob(ctx, spec)
				if err != nil {
					a.log.Error().Err(err).Str("job", spec.Name).Msg("job failed")
					o = runs.OutcomeFailed
				}
				outcomes[i] = o
				return nil
			})
		}
		g.Wait()

		out := worst(outcomes)
		a.log.Info().Str("outcome", string(out)).Msg("job file finished")
		return out, nil
	})
}

func cmdSwapCleanup(ctx context.Context, args []string, _ io.Writer) (runs.Outcome, error) {
	if err := parse(flag.NewFlagSet("swap-cleanup", flag.ContinueOnError), args); err != nil {
		return runs.OutcomeFailed, err
	}
	return withApp(ctx, func(a *app) (runs.Outcome, error) {
		if err := swap.NewLoader(a.deps, swap.PropertyConfig()).Cleanup(ctx); err != nil {
			return runs.OutcomeFailed, err
		}
		return runs.OutcomeSuccess, nil
	})
}

func cmdSwapRollback(ctx context.Context, args []string, _ io.Writer) (runs.Outcome, error) {
	if err := parse(flag.NewFlagSet("swap-rollback", flag.ContinueOnError), args); err != nil {
		return runs.OutcomeFailed, err
	}
	return withApp(ctx, func(a *app) (runs.Outcome, error) {
		if err := swap.NewLoader(a.deps, swap.PropertyConfig()).Rollback(ctx); err != nil {
			return runs.OutcomeFailed, err
		}
		return runs.OutcomeSuccess, nil
	})
}

func cmdStatus(ctx context.Context, args []string, stdout io.Writer) (runs.Outcome, error) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	dataset := fs.String("dataset", "", "only show this dataset")
	limit := fs.Int("limit", 20, "number of runs to show")
	if err := parse(fs, args); err != nil {
		return runs.OutcomeFailed, err
	}
	return withApp(ctx, func(a *app) (runs.Outcome, error) {
		list, err := a.deps.Tracker.List(ctx, *dataset, *limit)
		if err != nil {
			return runs.OutcomeFailed, err
		}
		writeRuns(stdout, list)
		return runs.OutcomeSuccess, nil
	})
}

func writeRuns(w io.Writer, list []runs.ImportRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATASET\tVERSION\tSTATUS\tOUTCOME\tSTAGE\tTOTAL\tWRITTEN\tSTARTED")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Dataset, r.Version, r.Status, r.Outcome, r.Stage,
			r.TotalRows, r.Successful, r.StartedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func cmdCancel(ctx context.Context, args []string, stdout io.Writer) (runs.Outcome, error) {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return runs.OutcomeFailed, err
	}
	if fs.NArg() != 1 {
		return runs.OutcomeFailed, fmt.Errorf("%w: cancel takes one run id", errUsage)
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return runs.OutcomeFailed, fmt.Errorf("%w: %v", errUsage, err)
	}
	return withApp(ctx, func(a *app) (runs.Outcome, error) {
		if err := a.deps.Tracker.RequestCancel(ctx, id); err != nil {
			return runs.OutcomeFailed, err
		}
		fmt.Fprintf(stdout, "cancellation requested for %s\n", id)
		return runs.OutcomeSuccess, nil
	})
}

func cmdMigrate(ctx context.Context, args []string, _ io.Writer) (runs.Outcome, error) {
	if err := parse(flag.NewFlagSet("migrate", flag.ContinueOnError), args); err != nil {
		return runs.OutcomeFailed, err
	}
	return withApp(ctx, func(a *app) (runs.Outcome, error) {
		if err := a.migrate(ctx); err != nil {
			return runs.OutcomeFailed, err
		}
		return runs.OutcomeSuccess, nil
	})
}
