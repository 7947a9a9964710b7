package db

import (
	"database/sql"
	"fmt"
	"time"
)

type Fault struct {
	ID         int64
	RecordedAt time.Time
	Source     string
	Message    string
}

type ProbeCommand struct {
	ID         int64
	RecordedAt time.Time
	Probe      string
	Command    string
	PrintTime  float64
	Outcome    string
}

type FanSpeed struct {
	ID         int64
	RecordedAt time.Time
	Fan        string
	PrintTime  float64
	Value      float64
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// GetFaults returns every recorded fault, oldest first.
func GetFaults(db *sql.DB) ([]Fault, error) {
	rows, err := db.Query(`SELECT id, recorded_at, source, message FROM faults ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query faults: %w", err)
	}
	defer rows.Close()

	var faults []Fault
	for rows.Next() {
		var f Fault
		var recordedAt string
		if err := rows.Scan(&f.ID, &recordedAt, &f.Source, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan fault: %w", err)
		}
		f.RecordedAt = parseTime(recordedAt)
		faults = append(faults, f)
	}
	return faults, rows.Err()
}

// GetRecentProbeCommands returns up to limit of the newest probe commands,
// newest first.
func GetRecentProbeCommands(db *sql.DB, limit int) ([]ProbeCommand, error) {
	rows, err := db.Query(`SELECT id, recorded_at, probe, command, print_time, outcome FROM probe_commands ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query probe commands: %w", err)
	}
	defer rows.Close()

	var cmds []ProbeCommand
	for rows.Next() {
		var c ProbeCommand
		var recordedAt string
		if err := rows.Scan(&c.ID, &recordedAt, &c.Probe, &c.Command, &c.PrintTime, &c.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan probe command: %w", err)
		}
		c.RecordedAt = parseTime(recordedAt)
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

// GetLatestFanSpeed returns the last recorded speed of fan.
func GetLatestFanSpeed(db *sql.DB, fan string) (*FanSpeed, error) {
	var s FanSpeed
	var recordedAt string
	err := db.QueryRow(`SELECT id, recorded_at, fan, print_time, value FROM fan_speeds WHERE fan = ? ORDER BY id DESC LIMIT 1`, fan).
		Scan(&s.ID, &recordedAt, &s.Fan, &s.PrintTime, &s.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to get fan speed for %s: %w", fan, err)
	}
	s.RecordedAt = parseTime(recordedAt)
	return &s, nil
}
