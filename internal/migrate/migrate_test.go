package migrate

import (
	"bytes"
	"database/sql"
	"errors"
	"log"
	"path/filepath"
	"testing"
	"time"
)

// sourceRow is one raw aircraft_data fixture row. Nil fields become SQL
// NULLs.
type sourceRow struct {
	icao24       any
	nNumber      any
	manufacturer any
	model        any
	operator     any
	name         any
	city         any
	state        any
	aircraftType any
	ownerType    any
	createdAt    any
	updatedAt    any
}

// seedSource creates a fresh database containing only a raw
// aircraft_data table with the given rows and returns its path.
func seedSource(t *testing.T, rows []sourceRow) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "static.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed database: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`CREATE TABLE aircraft_data (
		icao24 TEXT,
		"N-NUMBER" TEXT,
		manufacturer TEXT,
		model TEXT,
		operator TEXT,
		NAME TEXT,
		CITY TEXT,
		STATE TEXT,
		"TYPE AIRCRAFT" TEXT,
		"TYPE REGISTRANT" TEXT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`)
	if err != nil {
		t.Fatalf("create aircraft_data: %v", err)
	}

	for i, r := range rows {
		_, err := db.Exec(`INSERT INTO aircraft_data (
			icao24, "N-NUMBER", manufacturer, model, operator, NAME, CITY, STATE,
			"TYPE AIRCRAFT", "TYPE REGISTRANT", created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.icao24, r.nNumber, r.manufacturer, r.model, r.operator,
			r.name, r.city, r.state, r.aircraftType, r.ownerType,
			r.createdAt, r.updatedAt)
		if err != nil {
			t.Fatalf("insert fixture row %d: %v", i, err)
		}
	}
	return path
}

// openDB opens a separate connection for assertions.
func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()

	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestRunMigratesOnlyRowsWithManufacturer(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: " ABC123 ", manufacturer: "Cessna", model: "172", aircraftType: "Fixed wing", ownerType: "Individual"},
		{icao24: "def456", manufacturer: nil, model: "737"},
		{icao24: "0a1b2c", manufacturer: "   ", model: "A320"},
	})

	sum, err := New(path, nil).Run()
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if sum.SourceRows != 3 {
		t.Errorf("SourceRows = %d, want 3", sum.SourceRows)
	}
	if sum.RowsMigrated != 1 {
		t.Errorf("RowsMigrated = %d, want 1", sum.RowsMigrated)
	}
	if sum.AircraftRows != 1 {
		t.Errorf("AircraftRows = %d, want 1", sum.AircraftRows)
	}
	if sum.BackupRows != 3 {
		t.Errorf("BackupRows = %d, want 3", sum.BackupRows)
	}

	db := openDB(t, path)

	var icao, manufacturer, model, aircraftType, ownerType string
	err = db.QueryRow(`SELECT icao24, manufacturer, model, aircraft_type, owner_type FROM aircraft`).
		Scan(&icao, &manufacturer, &model, &aircraftType, &ownerType)
	if err != nil {
		t.Fatalf("read migrated row: %v", err)
	}
	if icao != "ABC123" {
		t.Errorf("icao24 = %q, want ABC123", icao)
	}
	if manufacturer != "Cessna" {
		t.Errorf("manufacturer = %q, want Cessna", manufacturer)
	}
	if model != "172" {
		t.Errorf("model = %q, want 172", model)
	}
	if aircraftType != "Fixed wing" {
		t.Errorf("aircraft_type = %q, want Fixed wing", aircraftType)
	}
	if ownerType != "Individual" {
		t.Errorf("owner_type = %q, want Individual", ownerType)
	}

	// The original import must be untouched.
	if n := countRows(t, db, "aircraft_data"); n != 3 {
		t.Errorf("aircraft_data rows = %d, want 3", n)
	}
}

func TestRunTrimsEveryTextField(t *testing.T) {
	path := seedSource(t, []sourceRow{{
		icao24:       "  a0b1c2  ",
		nNumber:      " N67AE ",
		manufacturer: "  Piper Aircraft Inc  ",
		model:        " PA-28-181 ",
		operator:     "  Acme Air  ",
		name:         " SMITH JOHN A ",
		city:         "  WICHITA ",
		state:        " KS ",
		aircraftType: " Fixed wing single engine ",
		ownerType:    " Corporation  ",
	}})

	if _, err := New(path, nil).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	db := openDB(t, path)
	var got [10]string
	err := db.QueryRow(`SELECT icao24, "N-NUMBER", manufacturer, model, operator,
		NAME, CITY, STATE, aircraft_type, owner_type FROM aircraft`).
		Scan(&got[0], &got[1], &got[2], &got[3], &got[4], &got[5], &got[6], &got[7], &got[8], &got[9])
	if err != nil {
		t.Fatalf("read migrated row: %v", err)
	}

	want := [10]string{
		"a0b1c2", "N67AE", "Piper Aircraft Inc", "PA-28-181", "Acme Air",
		"SMITH JOHN A", "WICHITA", "KS", "Fixed wing single engine", "Corporation",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunCoalescesMissingTimestamps(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: "Boeing", createdAt: "2019-05-04 10:00:00", updatedAt: "2019-05-04 10:00:00"},
		{icao24: "bbb222", manufacturer: "Airbus"},
	})

	if _, err := New(path, nil).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	db := openDB(t, path)

	var kept time.Time
	if err := db.QueryRow(`SELECT created_at FROM aircraft WHERE icao24 = 'aaa111'`).Scan(&kept); err != nil {
		t.Fatalf("read kept timestamp: %v", err)
	}
	want := time.Date(2019, 5, 4, 10, 0, 0, 0, time.UTC)
	if !kept.Equal(want) {
		t.Errorf("created_at = %v, want %v", kept, want)
	}

	var defaulted time.Time
	if err := db.QueryRow(`SELECT created_at FROM aircraft WHERE icao24 = 'bbb222'`).Scan(&defaulted); err != nil {
		t.Fatalf("read defaulted timestamp: %v", err)
	}
	if defaulted.IsZero() {
		t.Error("created_at for row without source timestamp is zero, want current time")
	}
}

func TestRunFailsOnDuplicateICAO24(t *testing.T) {
	tests := []struct {
		name string
		rows []sourceRow
	}{
		{"values collide after trim", []sourceRow{
			{icao24: " A1B2C3 ", manufacturer: "Boeing"},
			{icao24: "A1B2C3", manufacturer: "Airbus"},
		}},
		// Blank strings all trim to '' and collide with each other;
		// only NULL escapes the unique constraint.
		{"blank values collide", []sourceRow{
			{icao24: "", manufacturer: "Boeing"},
			{icao24: "   ", manufacturer: "Airbus"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := seedSource(t, tt.rows)

			_, err := New(path, nil).Run()
			if err == nil {
				t.Fatal("run succeeded with colliding icao24 values, want failure")
			}

			var stepErr *StepError
			if !errors.As(err, &stepErr) {
				t.Fatalf("error = %v (%T), want *StepError", err, err)
			}
			if stepErr.Step != "migrate data" {
				t.Errorf("failing step = %q, want %q", stepErr.Step, "migrate data")
			}
		})
	}
}

func TestRunMigratesRowsWithoutICAO24(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: nil, manufacturer: "Boeing"},
		{icao24: nil, manufacturer: "Airbus"},
	})

	sum, err := New(path, nil).Run()
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.AircraftRows != 2 {
		t.Errorf("AircraftRows = %d, want 2", sum.AircraftRows)
	}
}

func TestBackupNotRefreshedOnSecondRun(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: "Boeing"},
		{icao24: "bbb222", manufacturer: "Airbus"},
	})

	m := New(path, nil)
	if err := m.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = m.Close() }()

	if _, err := m.Backup(); err != nil {
		t.Fatalf("first backup: %v", err)
	}

	db := openDB(t, path)
	if n := countRows(t, db, "aircraft_data_backup"); n != 2 {
		t.Fatalf("backup rows after first backup = %d, want 2", n)
	}

	// Grow the source, back up again: the snapshot must stay frozen.
	_, err := db.Exec(`INSERT INTO aircraft_data (icao24, manufacturer) VALUES ('ccc333', 'Cessna')`)
	if err != nil {
		t.Fatalf("insert extra source row: %v", err)
	}

	count, err := m.Backup()
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}
	if count != 3 {
		t.Errorf("second backup saw %d source rows, want 3", count)
	}
	if n := countRows(t, db, "aircraft_data_backup"); n != 2 {
		t.Errorf("backup rows after second backup = %d, want 2", n)
	}
}

func TestRunTwiceRebuildsFromFrozenBackup(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: "Boeing"},
		{icao24: "bbb222", manufacturer: "Airbus"},
		{icao24: "ccc333", manufacturer: "   "},
	})

	if _, err := New(path, nil).Run(); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// New source rows after the first run never reach the aircraft table
	// because the copy reads the frozen backup.
	db := openDB(t, path)
	_, err := db.Exec(`INSERT INTO aircraft_data (icao24, manufacturer) VALUES ('ddd444', 'Cessna')`)
	if err != nil {
		t.Fatalf("insert extra source row: %v", err)
	}

	sum, err := New(path, nil).Run()
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if sum.AircraftRows != 2 {
		t.Errorf("aircraft rows after second run = %d, want 2", sum.AircraftRows)
	}
	if sum.BackupRows != 3 {
		t.Errorf("backup rows after second run = %d, want 3", sum.BackupRows)
	}
	if n := countRows(t, db, "aircraft"); n != 2 {
		t.Errorf("aircraft rows = %d, want 2 (must not accumulate across runs)", n)
	}
}

func TestRunFailsWhenSourceEmpty(t *testing.T) {
	path := seedSource(t, nil)

	_, err := New(path, nil).Run()
	if err == nil {
		t.Fatal("run succeeded on empty source, want failure")
	}

	// With no rows there is no backup snapshot, so the copy step is the
	// first to notice.
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error = %v (%T), want *StepError", err, err)
	}
	if stepErr.Step != "migrate data" {
		t.Errorf("failing step = %q, want %q", stepErr.Step, "migrate data")
	}
}

func TestVerifyFailsWhenAllRowsFiltered(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: nil},
		{icao24: "bbb222", manufacturer: "   "},
	})

	_, err := New(path, nil).Run()
	if err == nil {
		t.Fatal("run succeeded with zero migrated rows, want verification failure")
	}

	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v (%T), want *VerificationError", err, err)
	}
	if verr.AircraftRows != 0 {
		t.Errorf("AircraftRows = %d, want 0", verr.AircraftRows)
	}
	if verr.BackupRows != 2 {
		t.Errorf("BackupRows = %d, want 2", verr.BackupRows)
	}
}

func TestConnectFailsOnUnopenablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "static.db")

	m := New(path, nil)
	_, err := m.Run()
	if err == nil {
		t.Fatal("run succeeded on unopenable path, want failure")
	}

	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v (%T), want *ConnectionError", err, err)
	}

	// Close after a failed connect is a no-op.
	if err := m.Close(); err != nil {
		t.Errorf("close after failed connect: %v", err)
	}
}

func TestUpdateTriggerStampsUpdatedAt(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: "Boeing"},
	})

	if _, err := New(path, nil).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	db := openDB(t, path)

	// Any update fires the trigger, which overrides the stale value.
	_, err := db.Exec(`UPDATE aircraft SET created_at = '2001-01-01 00:00:00', updated_at = '2001-01-01 00:00:00'`)
	if err != nil {
		t.Fatalf("update row: %v", err)
	}

	var createdAt, updatedAt time.Time
	if err := db.QueryRow(`SELECT created_at, updated_at FROM aircraft`).Scan(&createdAt, &updatedAt); err != nil {
		t.Fatalf("read timestamps: %v", err)
	}
	if createdAt.Year() != 2001 {
		t.Errorf("created_at = %v, want the explicit 2001 value", createdAt)
	}
	if updatedAt.Year() == 2001 {
		t.Error("updated_at kept the explicit value, want trigger to stamp current time")
	}
}

func TestRunCreatesIndexesAndTrigger(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: "Boeing"},
	})

	if _, err := New(path, nil).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	db := openDB(t, path)

	wantIndexes := []string{
		"idx_aircraft_icao24",
		"idx_aircraft_manufacturer",
		"idx_aircraft_model",
		"idx_aircraft_type",
		"idx_aircraft_operator",
	}
	for _, name := range wantIndexes {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name).Scan(&n)
		if err != nil {
			t.Fatalf("check index %s: %v", name, err)
		}
		if n != 1 {
			t.Errorf("index %s missing", name)
		}
	}

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = 'update_aircraft_timestamp'`).Scan(&n)
	if err != nil {
		t.Fatalf("check trigger: %v", err)
	}
	if n != 1 {
		t.Error("trigger update_aircraft_timestamp missing")
	}
}

func TestStepsRunIndividually(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: "Boeing"},
		{icao24: "bbb222", manufacturer: "Airbus"},
	})

	m := New(path, nil)
	if err := m.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = m.Close() }()

	db := openDB(t, path)

	count, err := m.Backup()
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if count != 2 {
		t.Errorf("backup saw %d source rows, want 2", count)
	}
	if n := countRows(t, db, "aircraft_data_backup"); n != 2 {
		t.Errorf("backup rows = %d, want 2", n)
	}

	if err := m.DropAircraft(); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := m.CreateAircraft(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := countRows(t, db, "aircraft"); n != 0 {
		t.Errorf("aircraft rows after create = %d, want 0", n)
	}

	rows, err := m.MigrateData()
	if err != nil {
		t.Fatalf("migrate data: %v", err)
	}
	if rows != 2 {
		t.Errorf("rows migrated = %d, want 2", rows)
	}

	if err := m.CreateIndexes(); err != nil {
		t.Fatalf("create indexes: %v", err)
	}
	if err := m.Optimize(); err != nil {
		t.Fatalf("optimize: %v", err)
	}

	aircraft, backup, err := m.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if aircraft != 2 || backup != 2 {
		t.Errorf("verify counts = (%d, %d), want (2, 2)", aircraft, backup)
	}
}

func TestRunLogsProgress(t *testing.T) {
	path := seedSource(t, []sourceRow{
		{icao24: "aaa111", manufacturer: "Boeing"},
	})

	var buf bytes.Buffer
	if _, err := New(path, log.New(&buf, "", log.LstdFlags)).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Backed up 1 rows of data",
		"Migrated 1 rows of data",
		"Database cleanup completed successfully",
		"Database connection closed",
	} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log output missing %q\n%s", want, out)
		}
	}
}
