// Package migrate performs the one-time consolidation of a raw
// aircraft_data registry import into the clean aircraft table: snapshot
// the import, rebuild the table with trimmed columns and indexes, and
// verify the result. The sequence is strictly ordered and runs on a
// single connection; the whole database is unusable halfway through, so
// callers run it to completion or treat the file as needing a re-run.
package migrate

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// Migrator executes the consolidation sequence against one SQLite file.
// Run drives the steps in order; the individual step methods are exposed
// so callers can observe the database between steps.
type Migrator struct {
	path   string
	logger *log.Logger
	db     *sql.DB
}

// New returns a Migrator for the database file at path. A nil logger
// discards progress output.
func New(path string, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Migrator{path: path, logger: logger}
}

// Summary reports what a completed run did.
type Summary struct {
	SourceRows   int64 // rows found in aircraft_data at backup time
	RowsMigrated int64 // rows inserted into aircraft
	AircraftRows int64 // final aircraft count
	BackupRows   int64 // final aircraft_data_backup count
	Duration     time.Duration
}

// Run executes the full sequence: connect, backup, drop, create, copy,
// index, optimize, verify. The connection is closed on every return
// path. Errors are logged and returned; there are no retries.
func (m *Migrator) Run() (*Summary, error) {
	start := time.Now()

	if err := m.Connect(); err != nil {
		m.logger.Printf("Database connection failed: %v", err)
		return nil, err
	}
	defer func() { _ = m.Close() }()

	sum := &Summary{}
	if err := m.runSteps(sum); err != nil {
		m.logger.Printf("Database cleanup failed: %v", err)
		return nil, err
	}
	sum.Duration = time.Since(start)

	m.logger.Printf("Database cleanup completed successfully")
	return sum, nil
}

func (m *Migrator) runSteps(sum *Summary) error {
	var err error

	if sum.SourceRows, err = m.Backup(); err != nil {
		return err
	}
	if err = m.DropAircraft(); err != nil {
		return err
	}
	if err = m.CreateAircraft(); err != nil {
		return err
	}
	if sum.RowsMigrated, err = m.MigrateData(); err != nil {
		return err
	}
	if err = m.CreateIndexes(); err != nil {
		return err
	}
	if err = m.Optimize(); err != nil {
		return err
	}

	sum.AircraftRows, sum.BackupRows, err = m.Verify()
	return err
}

// Connect opens the database file and applies the connection pragmas.
// The pool is capped at one connection so the per-connection pragmas
// (synchronous, temp_store, mmap_size, cache_size) hold for every
// subsequent statement.
func (m *Migrator) Connect() error {
	db, err := sql.Open("sqlite", m.path)
	if err != nil {
		return &ConnectionError{Path: m.path, Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return &ConnectionError{Path: m.path, Err: err}
	}

	for _, pragma := range connectionPragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return &ConnectionError{Path: m.path, Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}

	m.db = db
	m.logger.Printf("Database connection established successfully")
	return nil
}

// Close releases the connection. Safe to call when Connect never ran.
func (m *Migrator) Close() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.logger.Printf("Database connection closed")
	return err
}

// Backup snapshots aircraft_data into aircraft_data_backup. The snapshot
// is only taken when the source has rows and never overwrites an
// existing backup, so repeated runs keep the original copy. Returns the
// source row count.
func (m *Migrator) Backup() (int64, error) {
	m.logger.Printf("Creating data backup...")

	var count int64
	if err := m.db.QueryRow(countSourceRows).Scan(&count); err != nil {
		return 0, &StepError{Step: "backup", Err: err}
	}
	if count > 0 {
		if _, err := m.db.Exec(createBackup); err != nil {
			return count, &StepError{Step: "backup", Err: err}
		}
		m.logger.Printf("Backed up %d rows of data", count)
	}
	return count, nil
}

// DropAircraft removes any previous aircraft table. Idempotent, and
// destructive to previously migrated data; the backup is the only copy
// kept.
func (m *Migrator) DropAircraft() error {
	m.logger.Printf("Dropping existing tables...")

	if _, err := m.db.Exec(dropAircraft); err != nil {
		return &StepError{Step: "drop tables", Err: err}
	}
	return nil
}

// CreateAircraft creates the consolidated aircraft table and its
// updated_at trigger.
func (m *Migrator) CreateAircraft() error {
	m.logger.Printf("Creating new aircraft table and trigger...")

	for _, stmt := range createAircraftStatements {
		if _, err := m.db.Exec(stmt); err != nil {
			return &StepError{Step: "create table", Err: err}
		}
	}
	return nil
}

// MigrateData copies cleaned rows from the backup into aircraft inside a
// single transaction, committed immediately after the insert. Returns
// the number of rows inserted.
func (m *Migrator) MigrateData() (int64, error) {
	m.logger.Printf("Migrating and cleaning data...")

	tx, err := m.db.Begin()
	if err != nil {
		return 0, &StepError{Step: "migrate data", Err: err}
	}

	res, err := tx.Exec(copyAircraftRows)
	if err != nil {
		_ = tx.Rollback()
		return 0, &StepError{Step: "migrate data", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, &StepError{Step: "migrate data", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StepError{Step: "migrate data", Err: err}
	}

	m.logger.Printf("Migrated %d rows of data", rows)
	return rows, nil
}

// CreateIndexes builds the secondary indexes for the expected query
// patterns: tail-number lookup, manufacturer/model filters, and the
// composite type filter.
func (m *Migrator) CreateIndexes() error {
	m.logger.Printf("Creating indexes...")

	for _, stmt := range indexStatements {
		if _, err := m.db.Exec(stmt); err != nil {
			return &StepError{Step: "create indexes", Err: err}
		}
	}
	return nil
}

// Optimize refreshes planner statistics and compacts the file.
func (m *Migrator) Optimize() error {
	m.logger.Printf("Optimizing database...")

	for _, stmt := range optimizeStatements {
		if _, err := m.db.Exec(stmt); err != nil {
			return &StepError{Step: "optimize", Err: err}
		}
	}
	return nil
}

// Verify counts the new and backup tables, logs both, and fails when the
// new table ended up empty. An empty aircraft table after a successful
// copy means every source row was filtered out.
func (m *Migrator) Verify() (aircraftRows, backupRows int64, err error) {
	m.logger.Printf("Verifying migration...")

	if err := m.db.QueryRow(countAircraft).Scan(&aircraftRows); err != nil {
		return 0, 0, &StepError{Step: "verify", Err: err}
	}
	if err := m.db.QueryRow(countBackup).Scan(&backupRows); err != nil {
		return aircraftRows, 0, &StepError{Step: "verify", Err: err}
	}

	m.logger.Printf("Original records: %d", backupRows)
	m.logger.Printf("Migrated records: %d", aircraftRows)

	if aircraftRows == 0 {
		return aircraftRows, backupRows, &VerificationError{AircraftRows: aircraftRows, BackupRows: backupRows}
	}
	return aircraftRows, backupRows, nil
}
