// Package storage provides the SQLite-backed event store for the Lumen
// collector. It uses modernc.org/sqlite (pure Go, no CGO), runs in WAL mode
// for concurrent read/write access, and applies schema migrations on open.
package storage

import (
	"database/sql"
	"fmt"

	// Register the pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// openDB opens (or creates) the SQLite database at path with WAL mode and a
// busy timeout, and applies pending migrations.
func openDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path must not be empty")
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}
