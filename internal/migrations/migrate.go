package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/Anvoria/alumnet/internal/config"
)

//go:embed sql/*.sql
var files embed.FS

// Direction selects which way migrations are applied
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// RunMigrations applies every pending up migration
func RunMigrations(cfg *config.Config) error {
	return Run(cfg, Up)
}

// Run applies the embedded migrations in the given direction.
// Being already at the target version is not an error.
func Run(cfg *config.Config, direction Direction) error {
	if cfg == nil {
		return errors.New("migrations: config is nil")
	}
	if direction != Up && direction != Down {
		return fmt.Errorf("migrations: direction must be up or down, got %q", direction)
	}

	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("Failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr == nil {
		slog.Info("Database schema version", "version", version, "dirty", dirty)
	}

	return nil
}

func newMigrate(cfg *config.Config) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}
