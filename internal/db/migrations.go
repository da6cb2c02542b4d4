package db

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// migration is one numbered schema step. Versions are contiguous from 1;
// the runner applies everything beyond the recorded maximum, in order,
// each inside its own transaction.
type migration struct {
	Version     int
	Description string
	Apply       func(tx *gorm.DB) error
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Create initial schema with conversations and messages tables",
		Apply: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&Conversation{}); err != nil {
				return err
			}
			return tx.AutoMigrate(&Message{})
		},
	},
	{
		Version:     2,
		Description: "Add sessions table",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&Session{})
		},
	},
	{
		Version:     3,
		Description: "Add checkpoints table for rollback capability",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&Checkpoint{})
		},
	},
	{
		Version:     4,
		Description: "Add templates table for prompt templates",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&Template{})
		},
	},
	{
		Version:     5,
		Description: "Add config table for runtime configuration",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&ConfigEntry{})
		},
	},
	{
		Version:     6,
		Description: "Add progress tracking table",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&Progress{})
		},
	},
}

// runMigrations applies every migration whose version exceeds the recorded
// maximum. Idempotent: a second run over the same database is a no-op.
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	log.Debug().Int("version", version).Msg("current schema version")

	for _, m := range migrations {
		if m.Version <= version {
			continue
		}
		// A gap in the version sequence means the migration list and the
		// recorded log disagree. Abort rather than apply out of order.
		if m.Version != version+1 {
			return fmt.Errorf("migration gap: recorded version %d, next available %d", version, m.Version)
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Apply(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:     m.Version,
				AppliedAt:   wire.Now(),
				Description: m.Description,
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		version = m.Version
		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("migration applied")
	}

	return nil
}

// currentVersion reads the highest applied version, 0 when none.
func currentVersion(db *gorm.DB) (int, error) {
	var version *int
	if err := db.Model(&SchemaMigration{}).Select("MAX(version)").Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}
