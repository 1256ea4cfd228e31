package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	dbName             = "rules.db"
	defaultBusyTimeout = 5 * time.Second
)

func filePragmas(o *dbOptions) []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", o.busyTimeout.Milliseconds()),
	}
}

// Connect opens the SQLite database holding the installed rule table and makes
// sure its schema exists.
func Connect(opts ...Option) (*sql.DB, error) {
	o := &dbOptions{path: dbName, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(o)
	}

	dsn := o.path
	switch {
	case o.inMemory:
		// A single shared connection keeps the in-memory database alive.
		dsn = ":memory:"
	case o.isReadOnly:
		dsn = "file:" + o.path + "?mode=ro"
	default:
		if dir := filepath.Dir(o.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if o.inMemory {
		db.SetMaxOpenConns(1)
	} else if !o.isReadOnly {
		for _, p := range filePragmas(o) {
			if _, err := db.Exec(p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", p, err)
			}
		}
	}

	if !o.isReadOnly {
		if err := initDB(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize database schema: %w", err)
		}
	}

	log.Debug().Str("dsn", dsn).Msg("Rule table database opened")

	return db, nil
}

// initDB creates the rule table schema if it does not exist.
func initDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dynamic_rules (
			id INTEGER PRIMARY KEY,
			priority INTEGER NOT NULL,
			action TEXT NOT NULL,
			url_filter TEXT NOT NULL,
			resource_types TEXT NOT NULL,
			installed_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}
