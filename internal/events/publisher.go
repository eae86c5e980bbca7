// Package events publishes registry change notifications over NATS so
// downstream consumers can refresh caches after a migration completes.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRegistryUpdated is the subject migration notifications are
// published on.
const SubjectRegistryUpdated = "registry.updated"

// RegistryUpdate describes a completed consolidation run.
type RegistryUpdate struct {
	DBPath       string    `json:"db_path"`
	AircraftRows int64     `json:"aircraft_rows"`
	BackupRows   int64     `json:"backup_rows"`
	RowsMigrated int64     `json:"rows_migrated"`
	DurationMS   int64     `json:"duration_ms"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Publisher wraps a NATS connection for publishing registry events.
type Publisher struct {
	nc *nats.Conn
}

// Connect establishes a NATS connection.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("registry_db"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{nc: nc}, nil
}

// PublishRegistryUpdate sends a migration notification and flushes it
// to the server before returning.
func (p *Publisher) PublishRegistryUpdate(u RegistryUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := p.nc.Publish(SubjectRegistryUpdated, data); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	if err := p.nc.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close drains the connection, letting buffered messages go out first.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
