// Package runs persists one record per import attempt so that an external
// monitor can follow progress and outcomes.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("runs: import run not found")
	// ErrFinished is returned when cancelling a run that already ended.
	ErrFinished = errors.New("runs: import run already finished")
)

// VersionLayout formats vintage dates in the version column.
const VersionLayout = time.DateOnly

// Tracker reads and writes import_runs.
type Tracker struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

func NewTracker(db *gorm.DB, log zerolog.Logger) *Tracker {
	return &Tracker{
		db:  db,
		log: log.With().Str("component", "runs").Logger(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create records a new run in status importing.
func (t *Tracker) Create(ctx context.Context, dataset string, version time.Time, source string) (*ImportRun, error) {
	run := &ImportRun{
		ID:         uuid.New(),
		Dataset:    dataset,
		Version:    version.Format(VersionLayout),
		Status:     StatusImporting,
		SourcePath: source,
		StartedAt:  t.now(),
	}
	if err := t.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("create import run: %w", err)
	}
	t.log.Info().Str("run_id", run.ID.String()).Str("dataset", dataset).Str("version", run.Version).Msg("import run created")
	return run, nil
}

func (t *Tracker) update(ctx context.Context, id uuid.UUID, cols map[string]any) error {
	res := t.db.WithContext(ctx).Model(&ImportRun{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update import run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Progress stores the latest counters and an optional note.
func (t *Tracker) Progress(ctx context.Context, id uuid.UUID, c Counts, note string) error {
	cols := c.columns()
	if note != "" {
		cols["notes"] = note
	}
	return t.update(ctx, id, cols)
}

func (t *Tracker) SetStage(ctx context.Context, id uuid.UUID, stage string) error {
	return t.update(ctx, id, map[string]any{"stage": stage})
}

// SetSource records the file being read and its fingerprint.
func (t *Tracker) SetSource(ctx context.Context, id uuid.UUID, path, checksum string) error {
	return t.update(ctx, id, map[string]any{"source_path": path, "source_checksum": checksum})
}

// Complete finishes a run. With promote the run becomes the dataset's
// current run and every other current run of the dataset is archived, in
// one transaction. Without promote the run is left pending.
func (t *Tracker) Complete(ctx context.Context, id uuid.UUID, c Counts, outcome Outcome, recordCount int64, promote bool) error {
	now := t.now()
	cols := c.columns()
	cols["outcome"] = outcome
	cols["record_count"] = recordCount
	cols["finished_at"] = now
	cols["status"] = StatusPending
	if promote {
		cols["status"] = StatusCurrent
	}

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run ImportRun
		if err := tx.Select("id", "dataset").First(&run, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if promote {
			if err := tx.Model(&ImportRun{}).
				Where("dataset = ? AND status = ? AND id <> ?", run.Dataset, StatusCurrent, id).
				Update("status", StatusArchived).Error; err != nil {
				return fmt.Errorf("archive previous runs: %w", err)
			}
		}
		return tx.Model(&ImportRun{}).Where("id = ?", id).Updates(cols).Error
	})
	if err != nil {
		return fmt.Errorf("complete import run %s: %w", id, err)
	}
	return nil
}

// Fail marks a run failed at stage with detail.
func (t *Tracker) Fail(ctx context.Context, id uuid.UUID, c Counts, stage, detail string) error {
	cols := c.columns()
	cols["status"] = StatusFailed
	cols["outcome"] = OutcomeFailed
	cols["stage"] = stage
	cols["notes"] = detail
	cols["finished_at"] = t.now()
	return t.update(ctx, id, cols)
}

// RequestCancel flags an unfinished run for cooperative cancellation.
func (t *Tracker) RequestCancel(ctx context.Context, id uuid.UUID) error {
	res := t.db.WithContext(ctx).Model(&ImportRun{}).
		Where("id = ? AND finished_at IS NULL", id).
		Update("cancel_requested", true)
	if res.Error != nil {
		return fmt.Errorf("cancel import run %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		t.log.Warn().Str("run_id", id.String()).Msg("cancellation requested")
		return nil
	}
	if _, err := t.Get(ctx, id); err != nil {
		return err
	}
	return ErrFinished
}

func (t *Tracker) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var flag bool
	err := t.db.WithContext(ctx).Model(&ImportRun{}).Select("cancel_requested").Where("id = ?", id).Scan(&flag).Error
	if err != nil {
		return false, fmt.Errorf("read cancel flag %s: %w", id, err)
	}
	return flag, nil
}

func (t *Tracker) first(ctx context.Context, q *gorm.DB) (*ImportRun, error) {
	var run ImportRun
	if err := q.WithContext(ctx).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	return t.first(ctx, t.db.Where("id = ?", id))
}

// Current returns the dataset's current run.
func (t *Tracker) Current(ctx context.Context, dataset string) (*ImportRun, error) {
	return t.first(ctx, t.db.Where("dataset = ? AND status = ?", dataset, StatusCurrent))
}

// Latest returns the most recent run for a dataset vintage.
func (t *Tracker) Latest(ctx context.Context, dataset string, version time.Time) (*ImportRun, error) {
	return t.first(ctx, t.db.Where("dataset = ? AND version = ?", dataset, version.Format(VersionLayout)).
		Order("created_at DESC"))
}

// List returns recent runs, newest first, optionally for one dataset.
func (t *Tracker) List(ctx context.Context, dataset string, limit int) ([]ImportRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := t.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if dataset != "" {
		q = q.Where("dataset = ?", dataset)
	}
	var out []ImportRun
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	return out, nil
}
