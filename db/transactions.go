package db

import (
	"database/sql"
	"fmt"
	"time"
)

var now = time.Now

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func timestamp() string {
	return now().UTC().Format(time.RFC3339Nano)
}

func InsertFaultWithTx(tx *sql.Tx, source, message string) error {
	_, err := tx.Exec(`INSERT INTO faults (recorded_at, source, message) VALUES (?, ?, ?)`, timestamp(), source, message)
	if err != nil {
		return fmt.Errorf("insert fault: %w", err)
	}
	return nil
}

func InsertProbeCommandWithTx(tx *sql.Tx, probe, command string, printTime float64, outcome string) error {
	_, err := tx.Exec(`INSERT INTO probe_commands (recorded_at, probe, command, print_time, outcome) VALUES (?, ?, ?, ?, ?)`,
		timestamp(), probe, command, printTime, outcome)
	if err != nil {
		return fmt.Errorf("insert probe command: %w", err)
	}
	return nil
}

func InsertFanSpeedWithTx(tx *sql.Tx, fan string, printTime, value float64) error {
	_, err := tx.Exec(`INSERT INTO fan_speeds (recorded_at, fan, print_time, value) VALUES (?, ?, ?, ?)`,
		timestamp(), fan, printTime, value)
	if err != nil {
		return fmt.Errorf("insert fan speed: %w", err)
	}
	return nil
}

func ClearFaultsWithTx(tx *sql.Tx) (int64, error) {
	res, err := tx.Exec(`DELETE FROM faults`)
	if err != nil {
		return 0, fmt.Errorf("clear faults: %w", err)
	}
	return res.RowsAffected()
}

// withTx runs fn inside a transaction, rolling back when it fails.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}
