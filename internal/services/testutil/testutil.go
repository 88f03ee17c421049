// Package testutil provides shared test utilities for service tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bbernstein/lacylights-motion/internal/database/models"
	"github.com/bbernstein/lacylights-motion/internal/database/repositories"
)

// TestDB holds the test database and repositories.
type TestDB struct {
	DB          *gorm.DB
	ProfileRepo *repositories.ProfileRepository
	PatchRepo   *repositories.PatchRepository
	SettingRepo *repositories.SettingRepository
}

// SetupTestDB creates an in-memory SQLite database for testing.
// It returns a TestDB with all repositories initialized and a cleanup function.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	// Create in-memory SQLite database
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// A second connection would open a second, empty database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto-migrate all models
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	testDB := &TestDB{
		DB:          db,
		ProfileRepo: repositories.NewProfileRepository(db),
		PatchRepo:   repositories.NewPatchRepository(db),
		SettingRepo: repositories.NewSettingRepository(db),
	}

	cleanup := func() {
		_ = sqlDB.Close()
	}

	return testDB, cleanup
}

// UniqueName generates a unique name for testing.
func UniqueName(prefix string) string {
	return prefix + "-" + cuid.New()[:8]
}
