package geodata

import (
	"context"
	"fmt"

	"github.com/EmpoweredVote/geo-ingest/internal/store"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Migrate creates the lookup tables and, if missing, the live property
// table.
func Migrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&BoundaryName{},
		&GSSCode{},
		&BoundaryGeometry{},
		&Postcode{},
		&WardHierarchy{},
		&ParishHierarchy{},
	); err != nil {
		return fmt.Errorf("auto-migrate geography tables: %w", err)
	}

	s := store.New(db, log)
	ok, err := s.TableExists(ctx, PropertiesTable)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.CreateTable(ctx, PropertyTable, PropertiesTable, store.Generation()); err != nil {
			return err
		}
	}

	log.Info().Msg("geography tables migrated")
	return nil
}
