// Package swap loads a full dataset into a staging table and exchanges it
// with the live table once its row count checks out.
package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/EmpoweredVote/geo-ingest/internal/geodata"
	"github.com/EmpoweredVote/geo-ingest/internal/importer"
	"github.com/EmpoweredVote/geo-ingest/internal/metrics"
	"github.com/EmpoweredVote/geo-ingest/internal/store"
	"github.com/rs/zerolog"
)

// State is a step of a staged load.
type State int

const (
	StagingEmpty State = iota
	StagingLoading
	StagingValidating
	SwapPending
	Swapped
	IndexesPending
	Complete
	Failed
)

var stateNames = [...]string{
	StagingEmpty:      "staging-empty",
	StagingLoading:    "staging-loading",
	StagingValidating: "staging-validating",
	SwapPending:       "swap-pending",
	Swapped:           "swapped",
	IndexesPending:    "indexes-pending",
	Complete:          "complete",
	Failed:            "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// propertyLockKey serialises exchanges of the property table.
const propertyLockKey int64 = 0x6765_6f70_726f_70

// Config names the tables of one staged dataset.
type Config struct {
	Dataset     importer.Dataset
	Live        string
	Staging     string
	Retained    string
	Def         store.TableDef
	Indexes     []store.IndexDef
	ForeignKeys []store.ForeignKeyDef
	Tolerance   Tolerance
	LockKey     int64
}

// PropertyConfig is the configuration of the property directory.
func PropertyConfig() Config {
	return Config{
		Dataset:     importer.PropertyDirectory,
		Live:        geodata.PropertiesTable,
		Staging:     geodata.PropertiesStagingTable,
		Retained:    geodata.PropertiesRetainedTable,
		Def:         geodata.PropertyTable,
		Indexes:     geodata.PropertyIndexes,
		ForeignKeys: geodata.PropertyForeignKeys,
		Tolerance:   Tolerance{Mode: Exact},
		LockKey:     propertyLockKey,
	}
}

func (c Config) exchange(check func(int64) error) store.Exchange {
	return store.Exchange{
		Live:     c.Live,
		Staging:  c.Staging,
		Retained: c.Retained,
		LockKey:  c.LockKey,
		Check:    check,
	}
}

// Params are the inputs of one load.
type Params struct {
	Paths []string
	// Version is the vintage; zero means "from the first file name".
	Version   time.Time
	Expected  int64
	BatchSize int
	Encoding  string
	SkipCount bool
}

// IndexFailure is an index or constraint that could not be built after a
// swap. The swap itself stands.
type IndexFailure struct {
	Name string
	Err  error
}

// Report describes a finished load.
type Report struct {
	importer.Result
	State         State
	StagingRows   int64
	IndexFailures []IndexFailure
}

// Loader runs staged loads for one table.
type Loader struct {
	deps importer.Deps
	cfg  Config
	log  zerolog.Logger
}

func NewLoader(deps importer.Deps, cfg Config) *Loader {
	return &Loader{
		deps: deps,
		cfg:  cfg,
		log:  deps.Log.With().Str("component", "swap").Str("table", cfg.Live).Logger(),
	}
}

// load tracks the state of one Load call.
type load struct {
	l     *Loader
	run   *importer.Run
	state State
	since time.Time
}

// mark moves to s without touching the database.
func (ld *load) mark(s State) {
	ld.l.log.Info().Str("from", ld.state.String()).Str("to", s.String()).Msg("load state changed")
	ld.state = s
}

func (ld *load) enter(ctx context.Context, s State) {
	if ld.run != nil {
		metrics.ObserveHistogram(metrics.StageDuration, time.Since(ld.since).Seconds(), metrics.Labels{
			"dataset": ld.l.cfg.Dataset.String(), "stage": ld.state.String(), "status": "ok",
		})
		if err := ld.l.deps.Tracker.SetStage(ctx, ld.run.ID(), s.String()); err != nil {
			ld.l.log.Warn().Err(err).Str("stage", s.String()).Msg("could not record stage")
		}
	}
	ld.mark(s)
	ld.since = time.Now()
}

// Load fills staging from p.Paths, validates and exchanges it into live,
// then rebuilds the live indexes. Live is untouched unless the exchange
// commits.
func (l *Loader) Load(ctx context.Context, p Params) (Report, error) {
	if err := l.cfg.Tolerance.Validate(); err != nil {
		return Report{State: Failed}, err
	}
	ld := &load{l: l, state: StagingEmpty, since: time.Now()}
	gen := store.Generation()

	if err := l.prepare(ctx, gen); err != nil {
		return Report{State: Failed}, err
	}

	run, err := importer.Begin(ctx, l.deps, importer.Job{
		Dataset:   l.cfg.Dataset,
		Paths:     p.Paths,
		Table:     l.cfg.Staging,
		Version:   p.Version,
		BatchSize: p.BatchSize,
		Encoding:  p.Encoding,
		SkipCount: p.SkipCount,
	})
	if err != nil {
		return Report{State: Failed}, err
	}
	ld.run = run
	fail := func(err error) (Report, error) {
		state := ld.state
		res := run.Fail(ctx, state.String(), err)
		ld.state = Failed
		return Report{Result: res, State: Failed}, res.Err
	}

	ld.enter(ctx, StagingLoading)
	for _, path := range p.Paths {
		if err := run.ImportFile(ctx, path); err != nil {
			return fail(err)
		}
	}

	ld.enter(ctx, StagingValidating)
	expected := p.Expected
	var staged int64
	// Runs inside the exchange transaction, which may hold the only
	// connection; the tracker is updated once it commits.
	check := func(count int64) error {
		staged = count
		if err := l.cfg.Tolerance.Check(expected, count); err != nil {
			return err
		}
		ld.mark(SwapPending)
		return nil
	}
	if _, err := l.deps.Store.Exchange(ctx, l.cfg.exchange(check)); err != nil {
		return fail(err)
	}
	ld.enter(ctx, Swapped)
	run.CountFrom(l.cfg.Live)

	ld.enter(ctx, IndexesPending)
	failures := l.buildIndexes(ctx, gen)

	res, err := run.Complete(ctx, true)
	rep := Report{Result: res, State: Complete, StagingRows: staged, IndexFailures: failures}
	if err != nil {
		rep.State = Failed
		return rep, err
	}
	ld.enter(ctx, Complete)
	return rep, nil
}

// prepare makes sure an empty staging table exists.
// prepare refuses early when a retained generation would block the
// exchange, then leaves an empty staging table. The exchange repeats the
// retained check under its lock.
func (l *Loader) prepare(ctx context.Context, gen string) error {
	retained, err := l.deps.Store.TableExists(ctx, l.cfg.Retained)
	if err != nil {
		return err
	}
	if retained {
		return fmt.Errorf("%s: %w", l.cfg.Retained, store.ErrRetainedExists)
	}
	ok, err := l.deps.Store.TableExists(ctx, l.cfg.Staging)
	if err != nil {
		return err
	}
	if !ok {
		return l.deps.Store.CreateTable(ctx, l.cfg.Def, l.cfg.Staging, gen)
	}
	return l.deps.Store.Truncate(ctx, l.cfg.Staging)
}

func (l *Loader) buildIndexes(ctx context.Context, gen string) []IndexFailure {
	var failures []IndexFailure
	for _, idx := range l.cfg.Indexes {
		if err := l.deps.Store.CreateIndex(ctx, l.cfg.Live, idx, gen); err != nil {
			l.log.Error().Err(err).Str("index", idx.Name).Msg("index build failed after swap")
			failures = append(failures, IndexFailure{Name: idx.Name, Err: err})
		}
	}
	for _, fk := range l.cfg.ForeignKeys {
		if err := l.deps.Store.AddForeignKey(ctx, l.cfg.Live, fk, gen); err != nil {
			l.log.Error().Err(err).Str("constraint", fk.Name).Msg("foreign key failed after swap")
			failures = append(failures, IndexFailure{Name: fk.Name, Err: err})
		}
	}
	return failures
}

// Cleanup drops the retained generation.
func (l *Loader) Cleanup(ctx context.Context) error {
	if err := l.deps.Store.DropRetained(ctx, l.cfg.exchange(nil)); err != nil {
		return err
	}
	l.log.Info().Str("retained", l.cfg.Retained).Msg("retained table dropped")
	return nil
}

// Rollback puts the retained generation back live. The rejected live table
// becomes staging.
func (l *Loader) Rollback(ctx context.Context) error {
	if err := l.deps.Store.Restore(ctx, l.cfg.exchange(nil)); err != nil {
		return err
	}
	l.log.Warn().Str("staging", l.cfg.Staging).Msg("swap rolled back")
	return nil
}
