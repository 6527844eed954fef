// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"project-canvas-hub/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Run applies migrations in the given direction for driver ("postgres" or "sqlite").
// For postgres, dsn is a postgres:// URL; for sqlite it is a file path.
// direction must be "up" or "down". Returns nil on success, including when there is nothing to do.
func Run(driver, dsn, direction string) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("database location is not set; set DATABASE_URL (postgres) or SQLITE_PATH (sqlite)")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	dialect, err := db.DialectFor(driver)
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations/"+dialect.String())
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, databaseURL(dialect, dsn))
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func databaseURL(dialect db.Dialect, dsn string) string {
	if dialect == db.SQLite && !strings.HasPrefix(dsn, "sqlite://") {
		if abs, err := filepath.Abs(dsn); err == nil {
			dsn = abs
		}
		return "sqlite://" + filepath.ToSlash(dsn)
	}
	return dsn
}
