package commands

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanetguard/vanetguard/internal/config"
	"github.com/vanetguard/vanetguard/internal/database"
	"github.com/vanetguard/vanetguard/internal/report"
)

// execute runs the root command with args. Commands share package state, so
// these tests do not run in parallel.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "vanetguard.yaml")

	out, err := execute(t, "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+path)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	def := config.Default()
	assert.Equal(t, def.Simulation, loaded.Simulation)
	assert.Equal(t, def.Detection, loaded.Detection)
	assert.Equal(t, def.Attack, loaded.Attack)
	assert.Equal(t, def.Node, loaded.Node)

	_, err = execute(t, "init", path)
	assert.Error(t, err)

	_, err = execute(t, "init", path, "--force")
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vanetguard "+Version)
}

func TestRun_ExportStoreAndShow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VANETGUARD_STORAGE_DRIVER", "sqlite3")
	t.Setenv("VANETGUARD_STORAGE_DSN", filepath.Join(dir, "runs.db"))

	_, err := execute(t, "run",
		"--attack", "flood",
		"--defenders", "3",
		"--attackers", "1",
		"--duration", "5s",
		"--seed", "7",
		"--export-dir", dir,
		"--quiet",
	)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "run-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	out, err := execute(t, "report", "show", files[0], "-o", "json")
	require.NoError(t, err)
	rep, err := report.Decode(strings.NewReader(out), report.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "flood", rep.AttackType)
	assert.Equal(t, 3, rep.Summary.Defenders)
	assert.Equal(t, 1, rep.Summary.Attackers)

	out, err = execute(t, "report", "list")
	require.NoError(t, err)
	assert.Contains(t, out, rep.RunID.String())

	out, err = execute(t, "report", "show", rep.RunID.String(), "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, rep.RunID.String())

	out, err = execute(t, "report", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "flood")

	out, err = execute(t, "report", "delete", rep.RunID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run")

	_, err = execute(t, "report", "show", rep.RunID.String())
	assert.ErrorIs(t, err, database.ErrRunNotFound)
}

func TestRun_InvalidFlags(t *testing.T) {
	_, err := execute(t, "run", "--defenders", "0", "--quiet")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	// restore a valid value for the tests that follow
	require.NoError(t, runCmd.Flags().Set("defenders", "3"))
}

func TestReport_NoStorage(t *testing.T) {
	_, err := execute(t, "report", "list")
	assert.ErrorIs(t, err, errNoStorage)

	_, err = execute(t, "report", "delete", "not-a-uuid")
	assert.Error(t, err)
}

func TestPrintRuns(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.MustParse("6f1c1d3e-0b7a-4d55-9a39-2f1f5c0b8e11")

	var buf bytes.Buffer
	printRuns(&buf, nil, now)
	assert.Equal(t, "No runs stored\n", buf.String())

	buf.Reset()
	printRuns(&buf, []database.RunInfo{{
		RunID:         id,
		CreatedAt:     now.Add(-2 * time.Hour),
		AttackType:    "sybil",
		Defenders:     16,
		Attackers:     8,
		Duration:      time.Minute,
		NetworkPDR:    91.25,
		DetectionRate: 87.5,
	}}, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "RUN ID")
	assert.Contains(t, lines[1], id.String())
	assert.Contains(t, lines[1], "sybil")
	assert.Contains(t, lines[1], "91.25%")
	assert.Contains(t, lines[1], "87.5%")
	assert.Contains(t, lines[1], "2 hours ago")
}

func TestPrintStats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printStats(&buf, []database.AttackStats{
		{AttackType: "", Runs: 1200, MeanNetworkPDR: 99, MeanDetectionRate: 0},
	})
	out := buf.String()
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "99%")
}
