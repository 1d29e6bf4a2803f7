package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Anvoria/alumnet/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FindProjectRoot finds the project root directory by looking for go.mod file
func FindProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd, nil
		}
		dir = parent
	}
}

// LoadTestConfig loads configuration for testing
// Config path can be overridden with TEST_CONFIG_PATH env variable
// Defaults to config.yaml in project root. Skips the test when no config exists.
func LoadTestConfig(t *testing.T) *config.Config {
	t.Helper()

	projectRoot, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("Failed to find project root: %v", err)
	}

	configPath := os.Getenv("TEST_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(projectRoot, configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Skipf("Skipping database test, config not available at %s: %v", configPath, err)
	}

	return cfg
}

// SetupTestDB creates a PostgreSQL database connection for testing
// Loads database configuration from config file and auto-migrates provided models.
// Skips the test when the database is unreachable.
func SetupTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	cfg := LoadTestConfig(t)

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping database test, connection failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil || sqlDB.Ping() != nil {
		t.Skipf("Skipping database test, database not reachable")
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("Failed to migrate test database: %v", err)
		}
	}

	return db
}
