package database

import (
	"errors"
	"time"

	"github.com/marqueelabs/movienight/internal/library"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Databases written by the pre-rewrite client could hold a selection entry for
// a movie that was later removed. The store now clears the selection on remove,
// so existing overlaps are repaired once here.
const migrationRepairSelectionRemovedOverlap = "2026-05-12_repair_selection_removed_overlap"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairSelectionRemovedOverlap, apply: repairSelectionRemovedOverlap},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func repairSelectionRemovedOverlap(db *gorm.DB) error {
	return db.
		Where("movie_id IN (?)", db.Model(&library.RemovedRecord{}).Select("movie_id")).
		Delete(&library.SelectionRecord{}).Error
}
