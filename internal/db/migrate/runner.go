// Package migrate applies the embedded SQL migrations with golang-migrate over the pgx driver.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"pikacloud/backend/internal/db"
)

// ErrNoChange is returned when there is nothing to apply in the requested direction.
var ErrNoChange = migrate.ErrNoChange

const migrationsDir = "migrations"

// Source opens the embedded migrations.
func Source() (source.Driver, error) {
	d, err := iofs.New(db.MigrationFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return d, nil
}

// driverURL rewrites a postgres DSN to the scheme registered by the pgx/v5 migrate driver.
func driverURL(dsn string) (string, error) {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", errors.New("DATABASE_URL must be a postgres:// URL")
}

// Run applies migrations in direction ("up" or "down"). steps > 0 limits how many are applied;
// 0 applies all. Returns ErrNoChange when already at the target version.
func Run(dsn, direction string, steps int) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	if steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", steps)
	}
	url, err := driverURL(dsn)
	if err != nil {
		return err
	}

	src, err := Source()
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case steps > 0 && direction == "up":
		return m.Steps(steps)
	case steps > 0:
		return m.Steps(-steps)
	case direction == "up":
		return m.Up()
	default:
		return m.Down()
	}
}
