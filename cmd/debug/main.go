package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/peripheral-controller/db"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command string
	var limit int
	flag.StringVar(&dbPath, "db", "data/journal.db", "Path to the SQLite journal database")
	flag.StringVar(&command, "cmd", "", "Command to run: list-faults, list-commands, clear-faults")
	flag.IntVar(&limit, "limit", 20, "Number of probe commands to list")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of peripheral-debug:")
		fmt.Println("  -db string\tPath to the SQLite journal database (default 'data/journal.db')")
		fmt.Println("  -cmd string\tCommand to run: list-faults, list-commands, clear-faults")
		fmt.Println("  -limit int\tNumber of probe commands to list (default 20)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "list-faults":
		err = db.ListFaultsCLI(dbPath, os.Stdout)
	case "list-commands":
		if limit <= 0 {
			fmt.Println("Error: limit must be positive")
			os.Exit(1)
		}
		err = db.ListProbeCommandsCLI(dbPath, limit, os.Stdout)
	case "clear-faults":
		err = db.ClearFaultsCLI(dbPath, os.Stdout)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}
