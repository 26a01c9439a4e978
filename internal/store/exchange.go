package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrRetainedExists means a previous generation is still retained; it
	// must be cleaned up before another exchange.
	ErrRetainedExists = errors.New("store: retained table already exists")
	// ErrNoStaging means there is nothing to exchange.
	ErrNoStaging = errors.New("store: staging table does not exist")
	// ErrNothingRetained means there is no previous generation to restore.
	ErrNothingRetained = errors.New("store: no retained table to restore")
	// ErrStagingExists blocks a restore while a staging table is present.
	ErrStagingExists = errors.New("store: staging table exists")
)

// Exchange names the three physical generations of one logical table.
type Exchange struct {
	Live     string
	Staging  string
	Retained string
	// LockKey is the advisory lock that serialises exchanges of the same
	// logical table across processes.
	LockKey int64
	// Check validates the staging row count under lock. A non-nil error
	// aborts the exchange.
	Check func(count int64) error
}

// lock takes the advisory lock and blocks writers to staging until the
// transaction ends. SQLite transactions are already exclusive for writers.
func (s *Store) lock(tx *gorm.DB, ex Exchange, tables ...string) error {
	if s.dialect != Postgres {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", ex.LockKey).Error; err != nil {
		return fmt.Errorf("advisory lock %d: %w", ex.LockKey, err)
	}
	for _, t := range tables {
		if err := tx.Exec("LOCK TABLE " + quoteIdent(t) + " IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
			return fmt.Errorf("lock %s: %w", t, err)
		}
	}
	return nil
}

func rename(tx *gorm.DB, from, to string) error {
	if err := tx.Exec("ALTER TABLE " + quoteIdent(from) + " RENAME TO " + quoteIdent(to)).Error; err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}

// Exchange validates staging and makes it live in one transaction. The
// previous live table, if any, becomes the retained table. It returns the
// staging row count seen under lock. On any error nothing is renamed.
func (s *Store) Exchange(ctx context.Context, ex Exchange) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := tableExists(tx, s.dialect, ex.Staging)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoStaging
		}
		if err := s.lock(tx, ex, ex.Staging); err != nil {
			return err
		}

		if count, err = countRows(tx, ex.Staging); err != nil {
			return err
		}
		if ex.Check != nil {
			if err := ex.Check(count); err != nil {
				return err
			}
		}

		if ok, err := tableExists(tx, s.dialect, ex.Retained); err != nil {
			return err
		} else if ok {
			return ErrRetainedExists
		}
		liveExists, err := tableExists(tx, s.dialect, ex.Live)
		if err != nil {
			return err
		}
		if liveExists {
			if err := rename(tx, ex.Live, ex.Retained); err != nil {
				return err
			}
		}
		return rename(tx, ex.Staging, ex.Live)
	})
	if err != nil {
		return count, err
	}
	s.log.Info().Str("live", ex.Live).Str("retained", ex.Retained).Int64("rows", count).Msg("staging exchanged into live")
	return count, nil
}

// Restore reverses an exchange: live goes back to staging and retained
// becomes live again.
func (s *Store) Restore(ctx context.Context, ex Exchange) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lock(tx, ex); err != nil {
			return err
		}
		ok, err := tableExists(tx, s.dialect, ex.Retained)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNothingRetained
		}
		if ok, err := tableExists(tx, s.dialect, ex.Staging); err != nil {
			return err
		} else if ok {
			return ErrStagingExists
		}
		liveExists, err := tableExists(tx, s.dialect, ex.Live)
		if err != nil {
			return err
		}
		if liveExists {
			if err := rename(tx, ex.Live, ex.Staging); err != nil {
				return err
			}
		}
		return rename(tx, ex.Retained, ex.Live)
	})
	if err != nil {
		return err
	}
	s.log.Warn().Str("live", ex.Live).Str("retained", ex.Retained).Msg("retained table restored to live")
	return nil
}

// DropRetained removes the retained generation under the exchange lock.
func (s *Store) DropRetained(ctx context.Context, ex Exchange) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lock(tx, ex); err != nil {
			return err
		}
		if err := tx.Exec("DROP TABLE IF EXISTS " + quoteIdent(ex.Retained)).Error; err != nil {
			return fmt.Errorf("drop %s: %w", ex.Retained, err)
		}
		return nil
	})
}
