package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// embedMigrations contains the versioned schema. Files are applied in order by goose.
//
//go:embed migrations/*.sql
var embedMigrations embed.FS

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Migrate opens the database at dbPath, applies pending migrations and closes it.
func Migrate(dbPath string) error {
	store, err := New(dbPath)
	if err != nil {
		return err
	}
	return store.Close()
}
