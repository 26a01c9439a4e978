// Package importer streams geography source files through per-dataset
// transforms into batched upserts, recording every run with the tracker.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/EmpoweredVote/geo-ingest/internal/batch"
	"github.com/EmpoweredVote/geo-ingest/internal/geo"
	"github.com/EmpoweredVote/geo-ingest/internal/metrics"
	"github.com/EmpoweredVote/geo-ingest/internal/runs"
	"github.com/EmpoweredVote/geo-ingest/internal/source"
	"github.com/EmpoweredVote/geo-ingest/internal/vintage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// StageImporting is the tracker stage of a plain import.
const StageImporting = "importing"

// progressInterval throttles tracker progress writes.
var progressInterval = 5 * time.Second

// maxSkipLogs caps per-record debug logging per run.
const maxSkipLogs = 20

// Run is one in-flight import. It owns its statistics; nothing else
// mutates them.
type Run struct {
	deps    Deps
	job     Job
	plan    plan
	sink    *batch.Sink
	id      uuid.UUID
	version time.Time
	started time.Time
	log     zerolog.Logger

	stats    Stats
	counted  string
	expected int64
	files    int
	logged   int
	progress rate.Sometimes
}

// Begin validates job, resolves its version and records a new run in
// status importing.
func Begin(ctx context.Context, deps Deps, job Job) (*Run, error) {
	if len(job.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if _, ok := datasetNames[job.Dataset]; !ok {
		return nil, fmt.Errorf("unknown dataset %d", job.Dataset)
	}
	started := time.Now().UTC()
	log := deps.Log.With().Str("dataset", job.Dataset.String()).Logger()

	version := job.Version
	if version.IsZero() {
		version = vintage.Resolve(job.Paths[0], started, log)
	}
	version = vintage.FirstOfMonth(version)

	rc := rowContext{
		version:      version,
		importedAt:   started,
		boundaryType: strings.ToLower(strings.TrimSpace(job.BoundaryType)),
		prefix:       CodePrefix(job.BoundaryType, job.CodePrefix),
	}
	if (job.Dataset == BoundaryNames || job.Dataset == BoundaryPolygons) && rc.prefix == "" {
		return nil, fmt.Errorf("%s needs a boundary type or code prefix", job.Dataset)
	}
	if rc.boundaryType == "" {
		rc.boundaryType = strings.ToLower(rc.prefix)
	}
	p, err := job.Dataset.plan(job, rc)
	if err != nil {
		return nil, err
	}

	rec, err := deps.Tracker.Create(ctx, job.Dataset.String(), version, job.Paths[0])
	if err != nil {
		return nil, err
	}

	size := job.BatchSize
	if size <= 0 {
		size = job.Dataset.DefaultBatchSize()
	}
	r := &Run{
		deps:     deps,
		job:      job,
		plan:     p,
		id:       rec.ID,
		version:  version,
		started:  started,
		progress: rate.Sometimes{Interval: progressInterval},
	}
	r.log = log.With().Str("run_id", rec.ID.String()).Str("version", version.Format(time.DateOnly)).Logger()
	r.sink = batch.NewSink(deps.Store, p.target, size, r.log)

	r.log.Info().
		Str("table", p.target.Table).
		Strs("files", job.Paths).
		Int("batch_size", r.sink.Size()).
		Msg("import started")
	return r, nil
}

func (r *Run) ID() uuid.UUID          { return r.id }
func (r *Run) Version() time.Time     { return r.version }
func (r *Run) Table() string          { return r.plan.target.Table }
func (r *Run) Logger() zerolog.Logger { return r.log }

// CountFrom makes Complete report the row count of table instead of the
// load target, for loads whose target has since been renamed.
func (r *Run) CountFrom(table string) { r.counted = table }

// Snapshot copies the current counters.
func (r *Run) Snapshot() Snapshot {
	return Snapshot{
		Stats:    r.stats,
		Expected: r.expected,
		Files:    r.files,
		Elapsed:  time.Since(r.started),
	}
}

func (r *Run) labels() metrics.Labels {
	return metrics.Labels{"dataset": r.job.Dataset.String()}
}

// record sorts a per-record error into its counter.
func (r *Run) record(err error) {
	switch {
	case errors.Is(err, errSkipped):
		r.stats.Skipped++
	case errors.Is(err, geo.ErrInvalidCoordinate):
		r.stats.CoordinateErrors++
	default:
		r.stats.TransformErrors++
	}
	if r.logged < maxSkipLogs {
		r.logged++
		r.log.Debug().Err(err).Msg("record not imported")
	}
}

// write flushes the pending batch into the counters.
func (r *Run) write(ctx context.Context) error {
	res, err := r.sink.Flush(ctx)
	r.stats.Successful += res.Written
	r.stats.WriteErrors += res.Failed
	r.stats.Duplicates += res.Duplicates
	if res.Submitted > 0 {
		metrics.IncCounter(metrics.BatchesTotal, 1, r.labels())
	}
	return err
}

// flush writes the pending batch and then checks for cancellation.
func (r *Run) flush(ctx context.Context) error {
	if err := r.write(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	cancel, err := r.deps.Tracker.CancelRequested(ctx, r.id)
	if err != nil {
		return err
	}
	if cancel {
		return ErrCancelled
	}

	r.progress.Do(func() {
		r.writeProgress(ctx)
	})
	return nil
}

func (r *Run) writeProgress(ctx context.Context) {
	snap := r.Snapshot()
	note := fmt.Sprintf("%d records", snap.Total)
	if snap.Expected > 0 {
		note = fmt.Sprintf("%d/%d records (%.1f%%)", snap.Total, snap.Expected, 100*float64(snap.Total)/float64(snap.Expected))
	}
	if err := r.deps.Tracker.Progress(ctx, r.id, snap.counts(), note); err != nil {
		r.log.Warn().Err(err).Msg("could not record progress")
	}
	r.log.Info().
		Int64("total", snap.Total).
		Int64("expected", snap.Expected).
		Int64("successful", snap.Successful).
		Dur("elapsed", snap.Elapsed).
		Msg("import progress")
}

// ImportFile streams one file into the target table. Per-record problems
// are counted; the returned error is structural.
func (r *Run) ImportFile(ctx context.Context, path string) error {
	log := r.log.With().Str("file", filepath.Base(path)).Logger()
	opts := source.Options{Encoding: r.job.Encoding}

	set, err := r.plan.open(path, opts)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	r.files++

	if !r.job.SkipCount {
		n, err := set.src.Count(ctx)
		if err != nil {
			return fmt.Errorf("count %s: %w", path, err)
		}
		r.expected += n
		if err := r.deps.Tracker.SetSource(ctx, r.id, path, set.src.Fingerprint()); err != nil {
			return err
		}
		if err := r.deps.Tracker.Progress(ctx, r.id, r.Snapshot().counts(), ""); err != nil {
			return err
		}
		log.Info().Int64("records", n).Str("blake2b", set.src.Fingerprint()).Msg("source counted")
	}

	before := r.stats
	var flushErr error
	srcErr := set.each(func(row []any, err error) bool {
		r.stats.Total++
		if err != nil {
			r.record(err)
			return true
		}
		if r.sink.Add(row) {
			if flushErr = r.flush(ctx); flushErr != nil {
				return false
			}
		}
		return true
	})
	if flushErr != nil {
		return flushErr
	}
	if srcErr != nil {
		return fmt.Errorf("read %s: %w", path, srcErr)
	}
	if err := r.flush(ctx); err != nil {
		return err
	}

	log.Info().
		Int64("records", r.stats.Total-before.Total).
		Int64("successful", r.stats.Successful-before.Successful).
		Int64("skipped", r.stats.Skipped-before.Skipped).
		Int64("coordinate_errors", r.stats.CoordinateErrors-before.CoordinateErrors).
		Msg("file imported")
	return nil
}

func (r *Run) emitRecords() {
	for kind, n := range map[string]int64{
		"successful":        r.stats.Successful,
		"skipped":           r.stats.Skipped,
		"coordinate_errors": r.stats.CoordinateErrors,
		"transform_errors":  r.stats.TransformErrors,
		"write_errors":      r.stats.WriteErrors,
		"duplicates":        r.stats.Duplicates,
	} {
		if n > 0 {
			metrics.IncCounter(metrics.RecordsTotal, float64(n), metrics.Labels{"dataset": r.job.Dataset.String(), "kind": kind})
		}
	}
}

func (r *Run) result(outcome runs.Outcome, count int64, err error) Result {
	return Result{
		RunID:       r.id,
		Dataset:     r.job.Dataset,
		Version:     r.version,
		Outcome:     outcome,
		Snapshot:    r.Snapshot(),
		RecordCount: count,
		Err:         err,
	}
}

// Complete finishes the run as success or partial. With promote the run
// becomes the dataset's current run.
func (r *Run) Complete(ctx context.Context, promote bool) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	if err := r.write(ctx); err != nil {
		res := r.Fail(ctx, StageImporting, err)
		return res, res.Err
	}
	if r.plan.finish != nil {
		if err := r.plan.finish(ctx, r.deps.Store, r.Table()); err != nil {
			res := r.Fail(ctx, StageImporting, err)
			return res, res.Err
		}
	}

	outcome := runs.OutcomeSuccess
	if !r.stats.Clean() {
		outcome = runs.OutcomePartial
	}
	table := r.Table()
	if r.counted != "" {
		table = r.counted
	}
	count, err := r.deps.Store.Count(ctx, table)
	if err != nil {
		r.log.Warn().Err(err).Msg("could not count target table")
	}
	snap := r.Snapshot()
	if !snap.Reconciled() {
		r.log.Error().Interface("stats", snap.Stats).Msg("run statistics do not reconcile")
	}
	if err := r.deps.Tracker.Complete(ctx, r.id, snap.counts(), outcome, count, promote); err != nil {
		return r.result(outcome, count, err), err
	}

	r.emitRecords()
	metrics.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"dataset": r.job.Dataset.String(), "outcome": string(outcome)})
	metrics.ObserveHistogram(metrics.StageDuration, snap.Elapsed.Seconds(),
		metrics.Labels{"dataset": r.job.Dataset.String(), "stage": StageImporting, "status": string(outcome)})

	r.log.Info().
		Str("outcome", string(outcome)).
		Int64("total", snap.Total).
		Int64("successful", snap.Successful).
		Int64("skipped", snap.Skipped).
		Int64("coordinate_errors", snap.CoordinateErrors).
		Int64("transform_errors", snap.TransformErrors).
		Int64("write_errors", snap.WriteErrors).
		Int64("duplicates", snap.Duplicates).
		Int64("record_count", count).
		Bool("promoted", promote).
		Dur("duration", snap.Elapsed).
		Msg("import completed")
	return r.result(outcome, count, nil), nil
}

// Fail records the run as failed at stage.
func (r *Run) Fail(ctx context.Context, stage string, cause error) Result {
	ctx = context.WithoutCancel(ctx)
	snap := r.Snapshot()
	if err := r.deps.Tracker.Fail(ctx, r.id, snap.counts(), stage, cause.Error()); err != nil {
		r.log.Error().Err(err).Msg("could not record failure")
	}
	r.emitRecords()
	metrics.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"dataset": r.job.Dataset.String(), "outcome": string(runs.OutcomeFailed)})
	metrics.ObserveHistogram(metrics.StageDuration, snap.Elapsed.Seconds(),
		metrics.Labels{"dataset": r.job.Dataset.String(), "stage": stage, "status": string(runs.OutcomeFailed)})

	r.log.Error().
		Err(cause).
		Str("stage", stage).
		Int64("total", snap.Total).
		Int64("successful", snap.Successful).
		Dur("duration", snap.Elapsed).
		Msg("import failed")
	return r.result(runs.OutcomeFailed, 0, &StageError{Stage: stage, Err: cause})
}

// Import runs job start to finish and promotes it on completion.
func Import(ctx context.Context, deps Deps, job Job) (Result, error) {
	r, err := Begin(ctx, deps, job)
	if err != nil {
		return Result{Dataset: job.Dataset, Outcome: runs.OutcomeFailed, Err: err}, err
	}
	for _, p := range job.Paths {
		if err := r.ImportFile(ctx, p); err != nil {
			res := r.Fail(ctx, StageImporting, err)
			return res, res.Err
		}
	}
	return r.Complete(ctx, true)
}
