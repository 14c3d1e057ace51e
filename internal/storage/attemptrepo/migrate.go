package attemptrepo

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/yusufsyaifudin/edumail/pkg/multidb"
)

const migrationsTable = "email_attempts_migrations"

//go:embed migrations
var migrations embed.FS

// Migrate applies the embedded schema for the given driver. Already applied migrations are not an error.
// The connection stays open, it is owned by the caller.
func Migrate(db *sqlx.DB, driver multidb.Driver) error {
	var (
		dbDriver database.Driver
		err      error
	)

	switch driver {
	case multidb.Postgres:
		dbDriver, err = postgres.WithInstance(db.DB, &postgres.Config{MigrationsTable: migrationsTable})
	case multidb.Sqlite:
		dbDriver, err = sqlite.WithInstance(db.DB, &sqlite.Config{MigrationsTable: migrationsTable})
	default:
		return fmt.Errorf("no migrations for driver '%s'", driver)
	}

	if err != nil {
		return fmt.Errorf("migration driver %s error: %w", driver, err)
	}

	src, err := iofs.New(migrations, "migrations/"+driver.String())
	if err != nil {
		return fmt.Errorf("migration source error: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver.String(), dbDriver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}

	return nil
}
