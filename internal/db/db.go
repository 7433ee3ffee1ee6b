// Package db owns the SQLite connection and schema migrations for persisted
// analysis results.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the SQLite database at path and applies
// the connection pragmas. Schema setup is the migrations' job; see MigrateUp.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// WAL lets the report tools read while a run is writing. The busy
	// timeout covers short writer overlap; longer contention is handled by
	// the stores' retry loop.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}
