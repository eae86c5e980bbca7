package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool for the registry mirror.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the registry mirror tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Mirror of the consolidated SQLite aircraft table, keyed by icao24.
	CREATE TABLE IF NOT EXISTS aircraft_registry (
		icao24          TEXT PRIMARY KEY,
		n_number        TEXT NOT NULL,
		manufacturer    TEXT,
		model           TEXT,
		operator        TEXT,
		name            TEXT,
		city            TEXT,
		state           TEXT,
		aircraft_type   TEXT,
		owner_type      TEXT,
		created_at      TIMESTAMPTZ,
		updated_at      TIMESTAMPTZ,
		synced_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_registry_n_number ON aircraft_registry(n_number);
	CREATE INDEX IF NOT EXISTS idx_registry_manufacturer ON aircraft_registry(manufacturer);
	CREATE INDEX IF NOT EXISTS idx_registry_type ON aircraft_registry(aircraft_type, owner_type);
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

const upsertRegistrySQL = `
	INSERT INTO aircraft_registry (icao24, n_number, manufacturer, model, operator, name, city, state, aircraft_type, owner_type, created_at, updated_at, synced_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	ON CONFLICT (icao24) DO UPDATE SET
		n_number = EXCLUDED.n_number,
		manufacturer = EXCLUDED.manufacturer,
		model = EXCLUDED.model,
		operator = EXCLUDED.operator,
		name = EXCLUDED.name,
		city = EXCLUDED.city,
		state = EXCLUDED.state,
		aircraft_type = EXCLUDED.aircraft_type,
		owner_type = EXCLUDED.owner_type,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		synced_at = NOW()
`

// UpsertAircraft inserts or updates one registry record. Records without
// an icao24 cannot be keyed and are silently skipped.
func (d *PostgresDB) UpsertAircraft(ctx context.Context, a Aircraft) error {
	if a.ICAO24 == "" {
		return nil
	}
	_, err := d.pool.Exec(ctx, upsertRegistrySQL,
		a.ICAO24, a.NNumber, a.Manufacturer, a.Model, a.Operator,
		a.Name, a.City, a.State, a.AircraftType, a.OwnerType,
		a.CreatedAt, a.UpdatedAt)
	return err
}

// UpsertAircraftBatch pushes a batch of registry records in one round
// trip and returns how many were sent. Records without an icao24 are
// skipped.
func (d *PostgresDB) UpsertAircraftBatch(ctx context.Context, aircraft []Aircraft) (int, error) {
	batch := &pgx.Batch{}
	for _, a := range aircraft {
		if a.ICAO24 == "" {
			continue
		}
		batch.Queue(upsertRegistrySQL,
			a.ICAO24, a.NNumber, a.Manufacturer, a.Model, a.Operator,
			a.Name, a.City, a.State, a.AircraftType, a.OwnerType,
			a.CreatedAt, a.UpdatedAt)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := d.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("upsert batch record %d: %w", i, err)
		}
	}
	return batch.Len(), nil
}

// GetRegistryAircraft retrieves one mirrored record by icao24. Returns
// nil when the mirror has no such record.
func (d *PostgresDB) GetRegistryAircraft(ctx context.Context, icao24 string) (*Aircraft, error) {
	var a Aircraft
	var manufacturer, model, operator, name, city, state, aircraftType, ownerType *string
	var createdAt, updatedAt *time.Time

	err := d.pool.QueryRow(ctx, `
		SELECT icao24, n_number, manufacturer, model, operator, name, city, state, aircraft_type, owner_type, created_at, updated_at
		FROM aircraft_registry WHERE icao24 = $1
	`, icao24).Scan(&a.ICAO24, &a.NNumber, &manufacturer, &model, &operator,
		&name, &city, &state, &aircraftType, &ownerType, &createdAt, &updatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if manufacturer != nil {
		a.Manufacturer = *manufacturer
	}
	if model != nil {
		a.Model = *model
	}
	if operator != nil {
		a.Operator = *operator
	}
	if name != nil {
		a.Name = *name
	}
	if city != nil {
		a.City = *city
	}
	if state != nil {
		a.State = *state
	}
	if aircraftType != nil {
		a.AircraftType = *aircraftType
	}
	if ownerType != nil {
		a.OwnerType = *ownerType
	}
	if createdAt != nil {
		a.CreatedAt = *createdAt
	}
	if updatedAt != nil {
		a.UpdatedAt = *updatedAt
	}
	return &a, nil
}

// CountRegistry returns the number of mirrored records.
func (d *PostgresDB) CountRegistry(ctx context.Context) (int64, error) {
	var count int64
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM aircraft_registry`).Scan(&count)
	return count, err
}
