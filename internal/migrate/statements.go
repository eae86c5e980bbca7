package migrate

// connectionPragmas are applied in order on the migration connection.
// cache_size is negative: SQLite reads it as KiB rather than pages.
var connectionPragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA mmap_size = 30000000000",
	"PRAGMA page_size = 4096",
	"PRAGMA cache_size = -2000",
}

const (
	countSourceRows = `SELECT COUNT(*) FROM aircraft_data`

	createBackup = `CREATE TABLE IF NOT EXISTS aircraft_data_backup AS SELECT * FROM aircraft_data`

	dropAircraft = `DROP TABLE IF EXISTS aircraft`
)

// createAircraftStatements build the consolidated table and its
// updated_at maintenance trigger, in order. Column names follow the raw
// FAA registry import, which is why some are quoted or upper-case.
var createAircraftStatements = []string{
	`CREATE TABLE aircraft (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		icao24 TEXT UNIQUE,
		"N-NUMBER" TEXT,
		manufacturer TEXT,
		model TEXT,
		operator TEXT,
		NAME TEXT,
		CITY TEXT,
		STATE TEXT,
		aircraft_type TEXT,
		owner_type TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TRIGGER IF NOT EXISTS update_aircraft_timestamp
	AFTER UPDATE ON aircraft
	BEGIN
		UPDATE aircraft
		SET updated_at = CURRENT_TIMESTAMP
		WHERE id = NEW.id;
	END`,
}

// copyAircraftRows trims every textual column, renames the two
// classification columns, and keeps only rows with a usable manufacturer.
const copyAircraftRows = `
	INSERT INTO aircraft (
		icao24,
		"N-NUMBER",
		manufacturer,
		model,
		operator,
		NAME,
		CITY,
		STATE,
		aircraft_type,
		owner_type,
		created_at,
		updated_at
	)
	SELECT
		TRIM(icao24),
		TRIM("N-NUMBER"),
		TRIM(manufacturer),
		TRIM(model),
		TRIM(operator),
		TRIM(NAME),
		TRIM(CITY),
		TRIM(STATE),
		TRIM("TYPE AIRCRAFT"),
		TRIM("TYPE REGISTRANT"),
		COALESCE(created_at, CURRENT_TIMESTAMP),
		COALESCE(updated_at, CURRENT_TIMESTAMP)
	FROM aircraft_data_backup
	WHERE manufacturer IS NOT NULL
	  AND TRIM(manufacturer) != ''`

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_aircraft_icao24 ON aircraft(icao24)`,
	`CREATE INDEX IF NOT EXISTS idx_aircraft_manufacturer ON aircraft(manufacturer)`,
	`CREATE INDEX IF NOT EXISTS idx_aircraft_model ON aircraft(model)`,
	`CREATE INDEX IF NOT EXISTS idx_aircraft_type ON aircraft(aircraft_type, owner_type)`,
	`CREATE INDEX IF NOT EXISTS idx_aircraft_operator ON aircraft(operator)`,
}

var optimizeStatements = []string{
	`ANALYZE`,
	`VACUUM`,
}

const (
	countAircraft = `SELECT COUNT(*) FROM aircraft`
	countBackup   = `SELECT COUNT(*) FROM aircraft_data_backup`
)
