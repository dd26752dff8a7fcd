// Package storage provides SQLite persistence for pingwatch.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "pingwatch.db"

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	path string
}

// Open creates and initializes the database inside dataDir. Every caller
// gets its own handle; processes sharing a data directory rely on SQLite
// locking (WAL + busy timeout) to serialize writes.
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	wrapped := &DB{DB: db, path: dbPath}
	if err := wrapped.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return wrapped, nil
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0,
			ping_success INTEGER NOT NULL DEFAULT 0,
			ping_latency_ms REAL,
			ping_error TEXT,
			ping_timestamp INTEGER NOT NULL,
			has_trace INTEGER NOT NULL DEFAULT 0,
			trace_success INTEGER NOT NULL DEFAULT 0,
			trace_error TEXT,
			trace_hops TEXT,
			trace_timestamp INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_timestamp ON incidents(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_host ON incidents(host, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_resolved ON incidents(resolved)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}

	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
