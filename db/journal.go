package db

import (
	"database/sql"
)

// Journal records faults, probe commands and fan speed changes.
type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

func (j *Journal) DB() *sql.DB {
	return j.db
}

func (j *Journal) RecordFault(source, message string) error {
	return withTx(j.db, func(tx *sql.Tx) error {
		return InsertFaultWithTx(tx, source, message)
	})
}

func (j *Journal) RecordProbeCommand(probe, command string, printTime float64, outcome string) error {
	return withTx(j.db, func(tx *sql.Tx) error {
		return InsertProbeCommandWithTx(tx, probe, command, printTime, outcome)
	})
}

func (j *Journal) RecordFanSpeed(fan string, printTime, value float64) error {
	return withTx(j.db, func(tx *sql.Tx) error {
		return InsertFanSpeedWithTx(tx, fan, printTime, value)
	})
}

func (j *Journal) ClearFaults() (int64, error) {
	var n int64
	err := withTx(j.db, func(tx *sql.Tx) error {
		var err error
		n, err = ClearFaultsWithTx(tx)
		return err
	})
	return n, err
}
