// Package storage provides access to the consolidated aircraft registry:
// the migrated SQLite file for lookups, the PostgreSQL mirror, and the
// ClickHouse snapshot archive.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Aircraft is one consolidated registry record from the aircraft table.
type Aircraft struct {
	ID           int64
	ICAO24       string
	NNumber      string
	Manufacturer string
	Model        string
	Operator     string
	Name         string
	City         string
	State        string
	AircraftType string
	OwnerType    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store wraps a SQLite connection to a migrated registry database.
type Store struct {
	db *sql.DB
}

// Open opens the registry database at the given path. The file is
// expected to already hold the consolidated aircraft table.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for concurrent readers, busy_timeout so lookups wait out
	// short write locks instead of failing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// The registration column keeps its FAA export spelling, so it needs
// quoting everywhere it appears.
const aircraftColumns = `id, icao24, "N-NUMBER", manufacturer, model, operator,
	NAME, CITY, STATE, aircraft_type, owner_type, created_at, updated_at`

// GetByICAO24 retrieves the aircraft with the given ICAO 24-bit address.
// Returns nil when the registry has no such record.
func (s *Store) GetByICAO24(icao24 string) (*Aircraft, error) {
	row := s.db.QueryRow(`SELECT `+aircraftColumns+` FROM aircraft WHERE icao24 = ?`, icao24)
	a, err := scanAircraft(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get aircraft by icao24: %w", err)
	}
	return a, nil
}

// GetByNNumber retrieves the aircraft registered under the given tail
// number. Returns nil when the registry has no such record.
func (s *Store) GetByNNumber(nNumber string) (*Aircraft, error) {
	row := s.db.QueryRow(`SELECT `+aircraftColumns+` FROM aircraft WHERE "N-NUMBER" = ?`, nNumber)
	a, err := scanAircraft(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get aircraft by n-number: %w", err)
	}
	return a, nil
}

// scanAircraft reads one aircraft row. Every text column except the key
// fields can be NULL in the FAA data, so they go through NullString.
func scanAircraft(scan func(dest ...interface{}) error) (*Aircraft, error) {
	var a Aircraft
	var icao, nNumber, manufacturer, model, operator sql.NullString
	var name, city, state, aircraftType, ownerType sql.NullString

	err := scan(&a.ID, &icao, &nNumber, &manufacturer, &model, &operator,
		&name, &city, &state, &aircraftType, &ownerType, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.ICAO24 = icao.String
	a.NNumber = nNumber.String
	a.Manufacturer = manufacturer.String
	a.Model = model.String
	a.Operator = operator.String
	a.Name = name.String
	a.City = city.String
	a.State = state.String
	a.AircraftType = aircraftType.String
	a.OwnerType = ownerType.String
	return &a, nil
}

// QueryParams contains filtering options for searching the registry.
type QueryParams struct {
	Manufacturer string // Filter by manufacturer (prefix match).
	Model        string // Filter by model (prefix match).
	Operator     string // Filter by operator (substring match).
	AircraftType string // Filter by aircraft type (exact match).
	OwnerType    string // Filter by owner type (exact match).
	State        string // Filter by state (exact match).
	Limit        int    // Max results (default 100, capped at 1000).
	Offset       int    // Pagination offset.
}

// Query retrieves aircraft matching the given parameters, ordered by id.
func (s *Store) Query(p QueryParams) ([]Aircraft, error) {
	var conditions []string
	var args []interface{}

	if p.Manufacturer != "" {
		conditions = append(conditions, "manufacturer LIKE ?")
		args = append(args, p.Manufacturer+"%")
	}
	if p.Model != "" {
		conditions = append(conditions, "model LIKE ?")
		args = append(args, p.Model+"%")
	}
	if p.Operator != "" {
		conditions = append(conditions, "operator LIKE ?")
		args = append(args, "%"+p.Operator+"%")
	}
	if p.AircraftType != "" {
		conditions = append(conditions, "aircraft_type = ?")
		args = append(args, p.AircraftType)
	}
	if p.OwnerType != "" {
		conditions = append(conditions, "owner_type = ?")
		args = append(args, p.OwnerType)
	}
	if p.State != "" {
		conditions = append(conditions, "STATE = ?")
		args = append(args, p.State)
	}

	query := `SELECT ` + aircraftColumns + ` FROM aircraft`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	if limit > 1000 {
		limit = 1000
	}
	query += fmt.Sprintf(" ORDER BY id LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query aircraft: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectAircraft(rows)
}

// ListAfter returns up to limit aircraft with id greater than afterID,
// ordered by id. Callers walk the whole registry by feeding the last
// returned id back in.
func (s *Store) ListAfter(afterID int64, limit int) ([]Aircraft, error) {
	rows, err := s.db.Query(`SELECT `+aircraftColumns+` FROM aircraft WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectAircraft(rows)
}

func collectAircraft(rows *sql.Rows) ([]Aircraft, error) {
	var result []Aircraft
	for rows.Next() {
		a, err := scanAircraft(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// Stats contains aggregate statistics about the consolidated registry.
type Stats struct {
	TotalAircraft    int
	Manufacturers    int
	ByAircraftType   map[string]int
	ByOwnerType      map[string]int
	TopManufacturers map[string]int
}

// GetStats returns statistics about the consolidated registry.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{
		ByAircraftType:   make(map[string]int),
		ByOwnerType:      make(map[string]int),
		TopManufacturers: make(map[string]int),
	}

	// Total aircraft.
	row := s.db.QueryRow("SELECT COUNT(*) FROM aircraft")
	if err := row.Scan(&stats.TotalAircraft); err != nil {
		return nil, err
	}

	// Distinct manufacturers.
	row = s.db.QueryRow("SELECT COUNT(DISTINCT manufacturer) FROM aircraft")
	if err := row.Scan(&stats.Manufacturers); err != nil {
		return nil, err
	}

	// By aircraft type.
	rows, err := s.db.Query("SELECT aircraft_type, COUNT(*) FROM aircraft WHERE aircraft_type IS NOT NULL AND aircraft_type != '' GROUP BY aircraft_type ORDER BY COUNT(*) DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.ByAircraftType[typ] = count
	}
	_ = rows.Close()

	// By owner type.
	rows, err = s.db.Query("SELECT owner_type, COUNT(*) FROM aircraft WHERE owner_type IS NOT NULL AND owner_type != '' GROUP BY owner_type ORDER BY COUNT(*) DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.ByOwnerType[typ] = count
	}
	_ = rows.Close()

	// Top manufacturers.
	rows, err = s.db.Query("SELECT manufacturer, COUNT(*) FROM aircraft GROUP BY manufacturer ORDER BY COUNT(*) DESC LIMIT 20")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var m string
		var count int
		if err := rows.Scan(&m, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.TopManufacturers[m] = count
	}
	_ = rows.Close()

	return stats, nil
}

// Counts returns the aircraft and backup table row counts. It fails
// when the file was never migrated and the tables do not exist.
func (s *Store) Counts() (aircraft, backup int64, err error) {
	if err := s.db.QueryRow("SELECT COUNT(*) FROM aircraft").Scan(&aircraft); err != nil {
		return 0, 0, fmt.Errorf("count aircraft: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM aircraft_data_backup").Scan(&backup); err != nil {
		return aircraft, 0, fmt.Errorf("count backup: %w", err)
	}
	return aircraft, backup, nil
}
