package runs

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/EmpoweredVote/geo-ingest/internal/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	gdb, err := db.Open(db.SQLitePrefix+filepath.Join(t.TempDir(), "runs.db"), "", zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewTracker(gdb, zerolog.New(io.Discard))
}

var may2025 = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func TestTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	run, err := tr.Create(ctx, "nspl", may2025, "NSPL_MAY_2025_UK.csv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.Status != StatusImporting || run.Version != "2025-05-01" {
		t.Fatalf("created = %+v", run)
	}

	c := Counts{Expected: 10, Total: 4, Successful: 3, Skipped: 1}
	if err := tr.Progress(ctx, run.ID, c, "4/10"); err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if err := tr.SetStage(ctx, run.ID, "staging-loading"); err != nil {
		t.Fatalf("SetStage: %v", err)
	}
	if err := tr.SetSource(ctx, run.ID, "/data/nspl.csv", "abc123"); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	got, err := tr.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalRows != 4 || got.Skipped != 1 || got.Notes != "4/10" || got.Stage != "staging-loading" || got.SourceChecksum != "abc123" {
		t.Errorf("after progress = %+v", got)
	}

	c.Total, c.Successful = 10, 9
	if err := tr.Complete(ctx, run.ID, c, OutcomePartial, 9, true); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ = tr.Get(ctx, run.ID)
	if got.Status != StatusCurrent || got.Outcome != OutcomePartial || got.RecordCount != 9 || !got.Finished() {
		t.Errorf("after complete = %+v", got)
	}

	latest, err := tr.Latest(ctx, "nspl", may2025)
	if err != nil || latest.ID != run.ID {
		t.Errorf("Latest = %v, %v", latest, err)
	}
}

func TestTracker_PromoteArchivesPrevious(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	first, _ := tr.Create(ctx, "onsud", may2025, "a.csv")
	if err := tr.Complete(ctx, first.ID, Counts{}, OutcomeSuccess, 0, true); err != nil {
		t.Fatal(err)
	}
	other, _ := tr.Create(ctx, "nspl", may2025, "n.csv")
	if err := tr.Complete(ctx, other.ID, Counts{}, OutcomeSuccess, 0, true); err != nil {
		t.Fatal(err)
	}
	second, _ := tr.Create(ctx, "onsud", may2025.AddDate(0, 1, 0), "b.csv")
	if err := tr.Complete(ctx, second.ID, Counts{}, OutcomeSuccess, 0, true); err != nil {
		t.Fatal(err)
	}

	cur, err := tr.Current(ctx, "onsud")
	if err != nil || cur.ID != second.ID {
		t.Fatalf("Current = %v, %v", cur, err)
	}
	prev, _ := tr.Get(ctx, first.ID)
	if prev.Status != StatusArchived {
		t.Errorf("previous status = %s", prev.Status)
	}
	if o, _ := tr.Get(ctx, other.ID); o.Status != StatusCurrent {
		t.Errorf("other dataset status = %s", o.Status)
	}

	list, err := tr.List(ctx, "onsud", 10)
	if err != nil || len(list) != 2 {
		t.Fatalf("List = %d, %v", len(list), err)
	}
	all, _ := tr.List(ctx, "", 0)
	if len(all) != 3 {
		t.Errorf("List all = %d", len(all))
	}
}

func TestTracker_CompleteWithoutPromoteIsPending(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	run, _ := tr.Create(ctx, "onsud", may2025, "a.csv")
	if err := tr.Complete(ctx, run.ID, Counts{}, OutcomeSuccess, 0, false); err != nil {
		t.Fatal(err)
	}
	got, _ := tr.Get(ctx, run.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s", got.Status)
	}
	if _, err := tr.Current(ctx, "onsud"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Current err = %v", err)
	}
}

func TestTracker_FailAndCancel(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	run, _ := tr.Create(ctx, "onsud", may2025, "a.csv")

	if err := tr.RequestCancel(ctx, run.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if ok, err := tr.CancelRequested(ctx, run.ID); err != nil || !ok {
		t.Errorf("CancelRequested = %v, %v", ok, err)
	}

	if err := tr.Fail(ctx, run.ID, Counts{Total: 5}, "staging-validating", "count mismatch"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := tr.Get(ctx, run.ID)
	if got.Status != StatusFailed || got.Outcome != OutcomeFailed || got.Stage != "staging-validating" || got.Notes != "count mismatch" {
		t.Errorf("failed run = %+v", got)
	}

	if err := tr.RequestCancel(ctx, run.ID); !errors.Is(err, ErrFinished) {
		t.Errorf("cancel finished err = %v", err)
	}
	if err := tr.RequestCancel(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancel unknown err = %v", err)
	}
	if err := tr.SetStage(ctx, uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStage unknown err = %v", err)
	}
}
