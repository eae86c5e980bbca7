// Command-line entry point for the aircraft registry database toolkit.
//
// The registry starts life as a raw aircraft_data table loaded from FAA
// registry exports. The migrate command consolidates it into a clean
// aircraft table (backing up the raw data first), and the remaining
// commands inspect or distribute the consolidated registry.
//
// Environment:
//
//	DB_PATH             SQLite database path (default: ./lib/db/static.db)
//	NATS_URL            NATS server for migrate notifications (optional)
//	POSTGRES_*          PostgreSQL connection for sync
//	CLICKHOUSE_*        ClickHouse connection for archive
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"registry_db/internal/events"
	"registry_db/internal/migrate"
	"registry_db/internal/storage"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "registry_db - aircraft registry database toolkit:")
	fmt.Fprintln(w, "  migrate  - consolidate raw aircraft_data into the aircraft table")
	fmt.Fprintln(w, "  verify   - check row counts in a migrated database")
	fmt.Fprintln(w, "  stats    - print registry statistics")
	fmt.Fprintln(w, "  sync     - mirror the registry into PostgreSQL")
	fmt.Fprintln(w, "  archive  - snapshot the registry into ClickHouse")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  registry_db migrate [-db static.db] [-nats-url nats://host:4222]")
	fmt.Fprintln(w, "  registry_db verify  [-db static.db]")
	fmt.Fprintln(w, "  registry_db stats   [-db static.db]")
	fmt.Fprintln(w, "  registry_db sync    [-db static.db] [-pg-host ...] [-batch 500]")
	fmt.Fprintln(w, "  registry_db archive [-db static.db] [-ch-host ...] [-date YYYY-MM-DD] [-list]")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "migrate":
		runMigrate(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "sync":
		runSync(os.Args[2:])
	case "archive":
		runArchive(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("DB_PATH", "./lib/db/static.db"), "SQLite database path")
	natsURL := fs.String("nats-url", envOrDefault("NATS_URL", ""), "NATS server URL for update notifications (optional)")
	_ = fs.Parse(args)

	logger := log.New(os.Stderr, "", log.LstdFlags)

	sum, err := migrate.New(*dbPath, logger).Run()
	if err != nil {
		// Run already logged the failure with its step context.
		os.Exit(1)
	}

	fmt.Printf("Migration completed: %d of %d rows migrated in %s\n",
		sum.RowsMigrated, sum.SourceRows, sum.Duration.Round(time.Millisecond))

	// Notify downstream consumers. Failures here must not fail the
	// migration: the database is already consolidated.
	if *natsURL != "" {
		pub, err := events.Connect(*natsURL)
		if err != nil {
			logger.Printf("Warning: NATS connect failed, skipping notification: %v", err)
			return
		}
		defer pub.Close()

		err = pub.PublishRegistryUpdate(events.RegistryUpdate{
			DBPath:       *dbPath,
			AircraftRows: sum.AircraftRows,
			BackupRows:   sum.BackupRows,
			RowsMigrated: sum.RowsMigrated,
			DurationMS:   sum.Duration.Milliseconds(),
			CompletedAt:  time.Now().UTC(),
		})
		if err != nil {
			logger.Printf("Warning: NATS publish failed: %v", err)
		}
	}
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("DB_PATH", "./lib/db/static.db"), "SQLite database path")
	_ = fs.Parse(args)

	store := openStore(*dbPath)
	defer func() { _ = store.Close() }()

	aircraft, backup, err := store.Counts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Verification failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Aircraft records: %d\n", aircraft)
	fmt.Printf("Backup records:   %d\n", backup)

	if aircraft == 0 {
		fmt.Fprintln(os.Stderr, "Verification failed: aircraft table is empty")
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("DB_PATH", "./lib/db/static.db"), "SQLite database path")
	_ = fs.Parse(args)

	store := openStore(*dbPath)
	defer func() { _ = store.Close() }()

	stats, err := store.GetStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Total aircraft:  %d\n", stats.TotalAircraft)
	fmt.Printf("Manufacturers:   %d\n", stats.Manufacturers)

	fmt.Println("\nBy aircraft type:")
	printCounts(stats.ByAircraftType)

	fmt.Println("\nBy owner type:")
	printCounts(stats.ByOwnerType)

	fmt.Println("\nTop manufacturers:")
	printCounts(stats.TopManufacturers)
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("DB_PATH", "./lib/db/static.db"), "SQLite database path")
	pgHost := fs.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := fs.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := fs.String("pg-user", envOrDefault("POSTGRES_USER", "registry"), "PostgreSQL user")
	pgPassword := fs.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "registry"), "PostgreSQL password")
	pgDB := fs.String("pg-database", envOrDefault("POSTGRES_DATABASE", "registry"), "PostgreSQL database")
	batchSize := fs.Int("batch", 500, "Rows per batch")
	_ = fs.Parse(args)

	store := openStore(*dbPath)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
		os.Exit(1)
	}

	var lastID int64
	var total, skipped int
	for {
		batch, err := store.ListAfter(lastID, *batchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading registry: %v\n", err)
			os.Exit(1)
		}
		if len(batch) == 0 {
			break
		}

		pushed, err := pg.UpsertAircraftBatch(ctx, batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pushing batch: %v\n", err)
			os.Exit(1)
		}
		total += pushed
		skipped += len(batch) - pushed
		lastID = batch[len(batch)-1].ID
	}

	count, err := pg.CountRegistry(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error counting registry: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Synced %d aircraft to PostgreSQL, skipped %d without icao24 (registry now holds %d)\n",
		total, skipped, count)
}

func runArchive(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("DB_PATH", "./lib/db/static.db"), "SQLite database path")
	chHost := fs.String("ch-host", envOrDefault("CLICKHOUSE_HOST", "localhost"), "ClickHouse host")
	chPort := fs.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse native port")
	chUser := fs.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := fs.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")
	chDB := fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "default"), "ClickHouse database")
	dateStr := fs.String("date", "", "Snapshot date YYYY-MM-DD (default: today)")
	batchSize := fs.Int("batch", 500, "Rows per batch")
	listDates := fs.Bool("list", false, "List archived snapshot dates and exit")
	_ = fs.Parse(args)

	snapshotDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *dateStr != "" {
		d, err := time.Parse("2006-01-02", *dateStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -date (use YYYY-MM-DD): %v\n", err)
			os.Exit(2)
		}
		snapshotDate = d
	}

	ctx := context.Background()

	ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
		Host:     *chHost,
		Port:     *chPort,
		Database: *chDB,
		User:     *chUser,
		Password: *chPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
		os.Exit(1)
	}

	if *listDates {
		dates, err := ch.SnapshotDates(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing snapshots: %v\n", err)
			os.Exit(1)
		}
		for _, d := range dates {
			fmt.Println(d.Format("2006-01-02"))
		}
		return
	}

	store := openStore(*dbPath)
	defer func() { _ = store.Close() }()

	var lastID int64
	var total int
	for {
		batch, err := store.ListAfter(lastID, *batchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading registry: %v\n", err)
			os.Exit(1)
		}
		if len(batch) == 0 {
			break
		}

		if err := ch.InsertSnapshotBatch(ctx, snapshotDate, batch); err != nil {
			fmt.Fprintf(os.Stderr, "Error inserting snapshot batch: %v\n", err)
			os.Exit(1)
		}
		total += len(batch)
		lastID = batch[len(batch)-1].ID
	}

	count, err := ch.SnapshotCount(ctx, snapshotDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error counting snapshot: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Archived %d aircraft under snapshot %s (%d rows for that date)\n",
		total, snapshotDate.Format("2006-01-02"), count)
}

func openStore(path string) *storage.Store {
	store, err := storage.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return store
}

// printCounts prints a count map sorted by count descending.
func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Printf("  %-40s %d\n", k, counts[k])
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
