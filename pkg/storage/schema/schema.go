// Package schema applies the core's embedded SQL migrations with goose
// through a single Migrate call, instead of requiring an out-of-band
// migration step.
package schema

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/xksnk/selfology-core/migrations"
)

const dialect = "postgres"

// Migrate applies every pending migration in migrations/ up to the latest
// version. Safe to call on every service startup: goose tracks applied
// versions in its own goose_db_version table and is a no-op once current.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Version reports the current applied migration version, so a caller can
// compare the database's schema with what the running binary expects.
func Version(db *sql.DB) (int64, error) {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.GetDBVersion(db)
}
