package database

import (
	"context"
	"fmt"
)

func (d *DB) initializeSchema(ctx context.Context) error {
	var schema []string
	switch d.driver {
	case "sqlite3":
		schema = sqliteSchema
	case "postgres":
		schema = postgresSchema
	default:
		return fmt.Errorf("unsupported driver for schema initialization: %s", d.driver)
	}

	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		attack_type TEXT NOT NULL,
		defenders INTEGER NOT NULL,
		attackers INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		events INTEGER NOT NULL,
		network_pdr REAL NOT NULL,
		detection_rate REAL NOT NULL,
		report TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS run_nodes (
		run_id TEXT NOT NULL,
		node_id INTEGER NOT NULL,
		malicious BOOLEAN NOT NULL,
		personal_pdr REAL NOT NULL,
		packets_sent INTEGER NOT NULL,
		detections INTEGER NOT NULL,
		blacklisted INTEGER NOT NULL,
		PRIMARY KEY (run_id, node_id),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_attack ON runs(attack_type)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		attack_type TEXT NOT NULL,
		defenders INTEGER NOT NULL,
		attackers INTEGER NOT NULL,
		duration_ns BIGINT NOT NULL,
		events BIGINT NOT NULL,
		network_pdr DOUBLE PRECISION NOT NULL,
		detection_rate DOUBLE PRECISION NOT NULL,
		report JSONB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS run_nodes (
		run_id UUID NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		node_id INTEGER NOT NULL,
		malicious BOOLEAN NOT NULL,
		personal_pdr DOUBLE PRECISION NOT NULL,
		packets_sent INTEGER NOT NULL,
		detections INTEGER NOT NULL,
		blacklisted INTEGER NOT NULL,
		PRIMARY KEY (run_id, node_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_attack ON runs(attack_type)`,
}
