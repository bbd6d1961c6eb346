// Package db stores per-tick control cycle records in sqlite.
//
// The schema is embedded and applied with golang-migrate when the database
// is opened, so a fresh path yields a ready recorder.
package db

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/autodrive/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the tick recorder database.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(Migrations()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openDB opens the database and applies connection pragmas without
// running migrations.
func openDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	monitoring.Logf("[db] opened %s", path)
	return &DB{sqlDB}, nil
}
