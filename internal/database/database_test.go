package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanetguard/vanetguard/internal/detection"
	"github.com/vanetguard/vanetguard/internal/ledger"
	"github.com/vanetguard/vanetguard/internal/message"
	"github.com/vanetguard/vanetguard/internal/node"
	"github.com/vanetguard/vanetguard/internal/report"
	"github.com/vanetguard/vanetguard/internal/simulation"
	"go.uber.org/zap/zaptest"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), zaptest.NewLogger(t), Config{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testReport(attackType string, pdr float64, createdAt time.Time) *report.Report {
	res := &simulation.Result{
		Duration:  10 * time.Second,
		Events:    500,
		Defenders: 2,
		Attackers: 1,
		Network:   ledger.Ratio{Sent: 10, Delivered: 9, Percent: pdr},
		Nodes: []node.Summary{
			{
				ID:          0,
				PersonalPDR: ledger.Ratio{Sent: 5, Delivered: 5, Percent: 100},
				Traffic:     node.TrafficStats{PacketsSent: 5},
				Detection:   detection.Statistics{TotalDetections: 3},
				Blacklisted: []message.NodeID{2},
			},
			{ID: 1, Traffic: node.TrafficStats{PacketsSent: 5}},
			{ID: 2, Malicious: true, AttackType: attackType},
		},
	}
	r := report.New(res, false)
	r.CreatedAt = createdAt
	return r
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "sqlite in memory", config: Config{Driver: "sqlite3", DSN: ":memory:"}},
		{name: "sqlite alias", config: Config{Driver: "sqlite", DSN: ":memory:"}},
		{name: "unsupported driver", config: Config{Driver: "mysql", DSN: "dummy"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, err := New(context.Background(), zaptest.NewLogger(t), tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, db)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sqlite3", db.Driver())
			assert.NoError(t, db.Ping(context.Background()))
			assert.NoError(t, db.Close())
		})
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &DB{driver: "postgres"}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &DB{driver: "sqlite3"}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestRunRepository_SaveGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRunRepository(setupTestDB(t))

	rep := testReport("flood", 90, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, rep))

	got, err := repo.Get(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, got.RunID)
	assert.Equal(t, "flood", got.AttackType)
	assert.Equal(t, rep.Summary, got.Summary)
	require.Len(t, got.Result.Nodes, 3)

	var nodes int
	require.NoError(t, repo.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM run_nodes WHERE run_id = ?`, rep.RunID.String()).Scan(&nodes))
	assert.Equal(t, 3, nodes)

	// ids are unique
	assert.Error(t, repo.Save(ctx, rep))
}

func TestRunRepository_GetMissing(t *testing.T) {
	t.Parallel()

	repo := NewRunRepository(setupTestDB(t))
	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunRepository_ListAndStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRunRepository(setupTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reports := []*report.Report{
		testReport("flood", 80, base),
		testReport("sybil", 95, base.Add(time.Minute)),
		testReport("flood", 90, base.Add(2*time.Minute)),
	}
	for _, r := range reports {
		require.NoError(t, repo.Save(ctx, r))
	}

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, reports[2].RunID, all[0].RunID)
	assert.Equal(t, reports[0].RunID, all[2].RunID)
	assert.Equal(t, 10*time.Second, all[0].Duration)
	assert.Equal(t, uint64(500), all[0].Events)
	assert.True(t, base.Add(2*time.Minute).Equal(all[0].CreatedAt))

	latest, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, reports[2].RunID, latest[0].RunID)

	stats, err := repo.StatsByAttack(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "flood", stats[0].AttackType)
	assert.Equal(t, 2, stats[0].Runs)
	assert.InDelta(t, 85.0, stats[0].MeanNetworkPDR, 1e-9)
	assert.InDelta(t, 50.0, stats[0].MeanDetectionRate, 1e-9)
	assert.Equal(t, "sybil", stats[1].AttackType)
	assert.Equal(t, 1, stats[1].Runs)
}

func TestRunRepository_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRunRepository(setupTestDB(t))

	rep := testReport("replay", 70, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, rep))
	require.NoError(t, repo.Delete(ctx, rep.RunID))

	_, err := repo.Get(ctx, rep.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, rep.RunID), ErrRunNotFound)
}
