package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for the registry snapshot
// archive.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the snapshot archive table. Each archive run
// appends one dated copy of the whole registry, so history queries can
// diff registrations over time.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS registry_history (
		snapshot_date   Date,
		icao24          String,
		n_number        String,
		manufacturer    LowCardinality(String),
		model           LowCardinality(String),
		operator        String,
		name            String,
		city            String,
		state           LowCardinality(String),
		aircraft_type   LowCardinality(String),
		owner_type      LowCardinality(String),
		created_at      DateTime64(3),
		updated_at      DateTime64(3),
		recorded_at     DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(snapshot_date)
	ORDER BY (icao24, snapshot_date)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// InsertSnapshotBatch appends registry records to the archive under the
// given snapshot date.
func (d *ClickHouseDB) InsertSnapshotBatch(ctx context.Context, snapshotDate time.Time, aircraft []Aircraft) error {
	if len(aircraft) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO registry_history (snapshot_date, icao24, n_number, manufacturer, model, operator, name, city, state, aircraft_type, owner_type, created_at, updated_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range aircraft {
		err := batch.Append(snapshotDate, a.ICAO24, a.NNumber, a.Manufacturer, a.Model,
			a.Operator, a.Name, a.City, a.State, a.AircraftType, a.OwnerType,
			a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// SnapshotCount returns the number of archived records for a snapshot
// date.
func (d *ClickHouseDB) SnapshotCount(ctx context.Context, snapshotDate time.Time) (uint64, error) {
	var count uint64
	row := d.conn.QueryRow(ctx, "SELECT count() FROM registry_history WHERE snapshot_date = ?", snapshotDate)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SnapshotDates returns the distinct snapshot dates in the archive,
// newest first.
func (d *ClickHouseDB) SnapshotDates(ctx context.Context) ([]time.Time, error) {
	rows, err := d.conn.Query(ctx, "SELECT DISTINCT snapshot_date FROM registry_history ORDER BY snapshot_date DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan snapshot date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot dates: %w", err)
	}
	return dates, nil
}
