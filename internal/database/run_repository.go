package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vanetguard/vanetguard/internal/report"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunInfo is the indexed summary of a stored run.
type RunInfo struct {
	RunID         uuid.UUID     `json:"run_id" yaml:"run_id"`
	CreatedAt     time.Time     `json:"created_at" yaml:"created_at"`
	AttackType    string        `json:"attack_type" yaml:"attack_type"`
	Defenders     int           `json:"defenders" yaml:"defenders"`
	Attackers     int           `json:"attackers" yaml:"attackers"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	Events        uint64        `json:"events" yaml:"events"`
	NetworkPDR    float64       `json:"network_pdr" yaml:"network_pdr"`
	DetectionRate float64       `json:"detection_rate" yaml:"detection_rate"`
}

// AttackStats aggregates stored runs that used the same attack type.
type AttackStats struct {
	AttackType        string  `json:"attack_type" yaml:"attack_type"`
	Runs              int     `json:"runs" yaml:"runs"`
	MeanNetworkPDR    float64 `json:"mean_network_pdr" yaml:"mean_network_pdr"`
	MeanDetectionRate float64 `json:"mean_detection_rate" yaml:"mean_detection_rate"`
}

// RunRepository stores and retrieves run reports.
type RunRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRunRepository creates a repository on db.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db, logger: db.logger}
}

// Save stores r and one row per node in a single transaction.
func (r *RunRepository) Save(ctx context.Context, rep *report.Report) error {
	var payload bytes.Buffer
	if err := rep.Encode(&payload, report.FormatJSON); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	s := rep.Summary
	_, err = tx.Execute(ctx, `
		INSERT INTO runs (run_id, created_at, attack_type, defenders, attackers,
			duration_ns, events, network_pdr, detection_rate, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID.String(), rep.CreatedAt, rep.AttackType, s.Defenders, s.Attackers,
		int64(s.SimulatedTime), int64(s.Events), s.NetworkPDR, s.DetectionRate,
		strings.TrimSpace(payload.String()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if rep.Result != nil {
		for _, n := range rep.Result.Nodes {
			_, err = tx.Execute(ctx, `
				INSERT INTO run_nodes (run_id, node_id, malicious, personal_pdr,
					packets_sent, detections, blacklisted)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rep.RunID.String(), int(n.ID), n.Malicious, n.PersonalPDR.Percent,
				n.Traffic.PacketsSent, n.Detection.TotalDetections, len(n.Blacklisted),
			)
			if err != nil {
				return fmt.Errorf("failed to insert node %d: %w", n.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	r.logger.Info("Run stored",
		zap.String("run_id", rep.RunID.String()),
		zap.String("attack_type", rep.AttackType),
	)
	return nil
}

// Get loads the full report of a run.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*report.Report, error) {
	var payload string
	err := r.db.QueryRow(ctx, `SELECT report FROM runs WHERE run_id = ?`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return report.Decode(strings.NewReader(payload), report.FormatJSON)
}

// List returns the most recent runs first. A non-positive limit returns
// every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]RunInfo, error) {
	query := `
		SELECT run_id, created_at, attack_type, defenders, attackers,
			duration_ns, events, network_pdr, detection_rate
		FROM runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			info     RunInfo
			id       string
			duration int64
			events   int64
		)
		if err := rows.Scan(&id, &info.CreatedAt, &info.AttackType, &info.Defenders,
			&info.Attackers, &duration, &events, &info.NetworkPDR, &info.DetectionRate); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if info.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		info.Duration = time.Duration(duration)
		info.Events = uint64(events)
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// StatsByAttack averages the stored runs per attack type.
func (r *RunRepository) StatsByAttack(ctx context.Context) ([]AttackStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT attack_type, COUNT(*), AVG(network_pdr), AVG(detection_rate)
		FROM runs GROUP BY attack_type ORDER BY attack_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate runs: %w", err)
	}
	defer rows.Close()

	var stats []AttackStats
	for rows.Next() {
		var s AttackStats
		if err := rows.Scan(&s.AttackType, &s.Runs, &s.MeanNetworkPDR, &s.MeanDetectionRate); err != nil {
			return nil, fmt.Errorf("failed to scan attack stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Delete removes a run and its node rows.
func (r *RunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Execute(ctx, `DELETE FROM run_nodes WHERE run_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete run nodes: %w", err)
	}
	res, err := tx.Execute(ctx, `DELETE FROM runs WHERE run_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}
