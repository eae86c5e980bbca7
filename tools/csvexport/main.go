// Package main provides a tool to export the consolidated aircraft
// registry to CSV format for spreadsheet analysis or downstream import.
// The output is one row per aircraft:
// icao24,n_number,manufacturer,model,operator,name,city,state,aircraft_type,owner_type,created_at,updated_at
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"registry_db/internal/storage"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DB_PATH", "./lib/db/static.db"), "SQLite database path")
	output := flag.String("output", "", "Output CSV file (default: stdout)")
	manufacturer := flag.String("manufacturer", "", "Only export aircraft from this manufacturer (prefix match)")
	state := flag.String("state", "", "Only export aircraft registered in this state")
	noHeader := flag.Bool("no-header", false, "Omit the header row")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	store, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	var writer *csv.Writer
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = csv.NewWriter(file)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	if !*noHeader {
		header := []string{"icao24", "n_number", "manufacturer", "model", "operator",
			"name", "city", "state", "aircraft_type", "owner_type", "created_at", "updated_at"}
		if err := writer.Write(header); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
			os.Exit(1)
		}
	}

	// Stream the registry in batches so large exports stay flat on memory.
	var lastID int64
	var total int
	for {
		batch, err := store.ListAfter(lastID, 1000)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading registry: %v\n", err)
			os.Exit(1)
		}
		if len(batch) == 0 {
			break
		}

		for _, a := range batch {
			lastID = a.ID
			if !matches(a, *manufacturer, *state) {
				continue
			}
			row := []string{
				a.ICAO24, a.NNumber, a.Manufacturer, a.Model, a.Operator,
				a.Name, a.City, a.State, a.AircraftType, a.OwnerType,
				a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
			}
			if err := writer.Write(row); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing row: %v\n", err)
				os.Exit(1)
			}
			total++
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		if *output != "" {
			fmt.Fprintf(os.Stderr, "Wrote %d aircraft to %s\n", total, *output)
		} else {
			fmt.Fprintf(os.Stderr, "Wrote %d aircraft\n", total)
		}
	}
}

// matches applies the optional export filters to one record.
func matches(a storage.Aircraft, manufacturer, state string) bool {
	if manufacturer != "" && !strings.HasPrefix(a.Manufacturer, manufacturer) {
		return false
	}
	if state != "" && a.State != state {
		return false
	}
	return true
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
