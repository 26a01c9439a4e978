package swap

import (
	"context"
	"errors"
	"testing"

	"github.com/EmpoweredVote/geo-ingest/internal/geodata"
	"github.com/EmpoweredVote/geo-ingest/internal/importer"
	"github.com/EmpoweredVote/geo-ingest/internal/runs"
	"github.com/EmpoweredVote/geo-ingest/internal/store"
	"github.com/EmpoweredVote/geo-ingest/internal/testutil"
)

const twoProperties = `UPRN,GRIDGB1E,GRIDGB1N,PCDS,LAD24CD,WD24CD
1,530268,179640,SW1A 2AA,E09000033,E05013806
2,651409.903,313177.270,NR30 5SD,E07000145,E05010488
`

const oneProperty = `UPRN,GRIDGB1E,GRIDGB1N,PCDS,LAD24CD,WD24CD
3,530268,179640,SW1A 2AB,E09000033,E05013806
`

func newLoader(t *testing.T) (*Loader, importer.Deps) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger()
	deps := importer.Deps{Store: store.New(gdb, log), Tracker: runs.NewTracker(gdb, log), Log: log}
	return NewLoader(deps, PropertyConfig()), deps
}

func count(t *testing.T, s *store.Store, table string) int64 {
	t.Helper()
	n, err := s.Count(context.Background(), table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func exists(t *testing.T, s *store.Store, table string) bool {
	t.Helper()
	ok, err := s.TableExists(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func TestLoad_Swaps(t *testing.T) {
	ctx := context.Background()
	l, deps := newLoader(t)
	path := testutil.WriteFile(t, t.TempDir(), "ONSUD_MAY_2025_EE.csv", twoProperties)

	rep, err := l.Load(ctx, Params{Paths: []string{path}, Expected: 2})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep.State != Complete || rep.StagingRows != 2 || rep.RecordCount != 2 || rep.Outcome != runs.OutcomeSuccess {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.IndexFailures) != 0 {
		t.Errorf("index failures = %+v", rep.IndexFailures)
	}

	if n := count(t, deps.Store, geodata.PropertiesTable); n != 2 {
		t.Errorf("live rows = %d", n)
	}
	if exists(t, deps.Store, geodata.PropertiesStagingTable) {
		t.Error("staging should have been renamed")
	}
	if !exists(t, deps.Store, geodata.PropertiesRetainedTable) {
		t.Error("previous live table should be retained")
	}

	run, err := deps.Tracker.Get(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != runs.StatusCurrent || run.Stage != Complete.String() {
		t.Errorf("run status %s stage %s", run.Status, run.Stage)
	}

	if err := l.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if exists(t, deps.Store, geodata.PropertiesRetainedTable) {
		t.Error("retained table survived cleanup")
	}
}

func TestLoad_SkipCount(t *testing.T) {
	ctx := context.Background()
	l, deps := newLoader(t)
	path := testutil.WriteFile(t, t.TempDir(), "ONSUD_MAY_2025.csv", twoProperties)

	rep, err := l.Load(ctx, Params{Paths: []string{path}, Expected: 2, SkipCount: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep.State != Complete || rep.Snapshot.Expected != 0 || rep.StagingRows != 2 {
		t.Errorf("report = %+v", rep)
	}
	if n := count(t, deps.Store, geodata.PropertiesTable); n != 2 {
		t.Errorf("live rows = %d", n)
	}
}

func TestLoad_CountMismatchKeepsLive(t *testing.T) {
	ctx := context.Background()
	l, deps := newLoader(t)
	dir := t.TempDir()

	if _, err := l.Load(ctx, Params{Paths: []string{testutil.WriteFile(t, dir, "ONSUD_MAY_2025.csv", twoProperties)}, Expected: 2}); err != nil {
		t.Fatal(err)
	}
	if err := l.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}

	rep, err := l.Load(ctx, Params{Paths: []string{testutil.WriteFile(t, dir, "ONSUD_AUG_2025.csv", oneProperty)}, Expected: 5})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if verr.Expected != 5 || verr.Actual != 1 {
		t.Errorf("validation error = %+v", verr)
	}
	if rep.State != Failed || rep.Outcome != runs.OutcomeFailed {
		t.Errorf("report = %+v", rep)
	}

	if n := count(t, deps.Store, geodata.PropertiesTable); n != 2 {
		t.Errorf("live rows = %d, want 2", n)
	}
	if n := count(t, deps.Store, geodata.PropertiesStagingTable); n != 1 {
		t.Errorf("staging rows = %d, want 1", n)
	}
	if exists(t, deps.Store, geodata.PropertiesRetainedTable) {
		t.Error("no retained table expected")
	}

	run, err := deps.Tracker.Get(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != runs.StatusFailed || run.Stage != StagingValidating.String() {
		t.Errorf("run status %s stage %s", run.Status, run.Stage)
	}
}

func TestLoad_RetainedBlocksSwap(t *testing.T) {
	ctx := context.Background()
	l, deps := newLoader(t)
	dir := t.TempDir()

	if _, err := l.Load(ctx, Params{Paths: []string{testutil.WriteFile(t, dir, "ONSUD_MAY_2025.csv", twoProperties)}, Expected: 2}); err != nil {
		t.Fatal(err)
	}
	_, err := l.Load(ctx, Params{Paths: []string{testutil.WriteFile(t, dir, "ONSUD_AUG_2025.csv", oneProperty)}, Expected: 1})
	if !errors.Is(err, store.ErrRetainedExists) {
		t.Fatalf("err = %v, want ErrRetainedExists", err)
	}
	if n := count(t, deps.Store, geodata.PropertiesTable); n != 2 {
		t.Errorf("live rows = %d, want 2", n)
	}
	if exists(t, deps.Store, geodata.PropertiesStagingTable) {
		t.Error("staging should not be loaded while a retained table exists")
	}
	list, err := deps.Tracker.List(ctx, importer.PropertyDirectory.String(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("runs recorded = %d, want 1", len(list))
	}
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	l, deps := newLoader(t)
	path := testutil.WriteFile(t, t.TempDir(), "ONSUD_MAY_2025.csv", twoProperties)

	if _, err := l.Load(ctx, Params{Paths: []string{path}, Expected: 2}); err != nil {
		t.Fatal(err)
	}
	if err := l.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if n := count(t, deps.Store, geodata.PropertiesTable); n != 0 {
		t.Errorf("live rows after rollback = %d, want 0", n)
	}
	if n := count(t, deps.Store, geodata.PropertiesStagingTable); n != 2 {
		t.Errorf("rejected rows in staging = %d, want 2", n)
	}
	if err := l.Rollback(ctx); !errors.Is(err, store.ErrNothingRetained) {
		t.Errorf("second rollback err = %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StagingEmpty.String() != "staging-empty" || IndexesPending.String() != "indexes-pending" || Failed.String() != "failed" {
		t.Error("unexpected state names")
	}
	if State(42).String() != "state(42)" {
		t.Error("unknown state name")
	}
}
