package db

import (
	"fmt"
	"io"
	"time"
)

func ListFaultsCLI(dbPath string, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	faults, err := GetFaults(conn)
	if err != nil {
		return err
	}
	if len(faults) == 0 {
		fmt.Fprintln(w, "No faults recorded")
		return nil
	}
	for _, f := range faults {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.ID, f.RecordedAt.Format(time.RFC3339), f.Source, f.Message)
	}
	return nil
}

func ListProbeCommandsCLI(dbPath string, limit int, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	cmds, err := GetRecentProbeCommands(conn, limit)
	if err != nil {
		return err
	}
	for _, c := range cmds {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.6f\t%s\n", c.ID, c.RecordedAt.Format(time.RFC3339), c.Probe, c.Command, c.PrintTime, c.Outcome)
	}
	return nil
}

func ClearFaultsCLI(dbPath string, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := NewJournal(conn).ClearFaults()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Cleared %d faults\n", n)
	return nil
}
