package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE faults (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT NOT NULL,
		source TEXT NOT NULL,
		message TEXT NOT NULL
	)`,
	`CREATE TABLE probe_commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT NOT NULL,
		probe TEXT NOT NULL,
		command TEXT NOT NULL,
		print_time REAL NOT NULL,
		outcome TEXT NOT NULL
	)`,
	`CREATE TABLE fan_speeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT NOT NULL,
		fan TEXT NOT NULL,
		print_time REAL NOT NULL,
		value REAL NOT NULL
	)`,
	`CREATE INDEX idx_probe_commands_probe ON probe_commands (probe, id)`,
}

// Open opens the journal database at path, creating its directory, and
// brings the schema up to date.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps an in-memory database shared and serializes writers
	conn.SetMaxOpenConns(1)

	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ApplyMigrations runs every migration newer than the recorded schema version.
func ApplyMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var version int
	err := conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := StartTransaction(conn)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := CommitTransaction(tx); err != nil {
			return err
		}
		log.Debug().Int("version", i+1).Msg("Applied journal migration")
	}
	return nil
}
