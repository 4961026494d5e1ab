package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/marqueelabs/movienight/internal/library"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsSelectionRemovedOverlap(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&library.RemovedRecord{}, &library.SelectionRecord{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	rows := []library.SelectionRecord{
		{MovieID: 1, Position: 0, SelectedAtSeconds: 1700000000},
		{MovieID: 2, Position: 1, SelectedAtSeconds: 1700000000},
	}
	if err := database.Create(&rows).Error; err != nil {
		testContext.Fatalf("failed to insert selection rows: %v", err)
	}
	removed := library.RemovedRecord{MovieID: 2, RemovedAtSeconds: 1700000100}
	if err := database.Create(&removed).Error; err != nil {
		testContext.Fatalf("failed to insert removed row: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var remaining []library.SelectionRecord
	if err := database.Find(&remaining).Error; err != nil {
		testContext.Fatalf("failed to reload selection: %v", err)
	}
	if len(remaining) != 1 || remaining[0].MovieID != 1 {
		testContext.Fatalf("expected only movie 1 to stay selected, got %#v", remaining)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationRepairSelectionRemovedOverlap).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
