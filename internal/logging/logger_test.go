package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileConfig(t *testing.T) (Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "vanetguard.log")
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.OutputPath = path
	cfg.Sampling.Enabled = false
	return cfg, path
}

func TestNewFactory_InvalidLevel(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := NewFactory(cfg)
	assert.Error(t, err)
}

func TestFactory_FileOutput(t *testing.T) {
	t.Parallel()

	cfg, path := fileConfig(t)
	f, err := NewFactory(cfg)
	require.NoError(t, err)

	f.Root().Info("run started")
	f.Root().Debug("hidden")
	f.Logger("detection").Info("sender blacklisted")
	require.NoError(t, f.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"msg":"run started"`)
	assert.Contains(t, out, `"logger":"detection"`)
	assert.NotContains(t, out, "hidden")
}

func TestFactory_ModuleLevels(t *testing.T) {
	t.Parallel()

	cfg, path := fileConfig(t)
	cfg.ModuleLevels = map[string]string{
		"node":   "debug",
		"ledger": "error",
	}
	f, err := NewFactory(cfg)
	require.NoError(t, err)

	assert.Same(t, f.Logger("node"), f.Logger("node"))

	f.Logger("node").Debug("node debug")
	f.Logger("ledger").Warn("ledger warn")
	f.Logger("simulation").Debug("simulation debug")
	// children inherit the level of their named parent
	f.Root().Named("node").Named("detection").Debug("nested debug")
	f.Root().Info("root info")
	require.NoError(t, f.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "node debug")
	assert.Contains(t, lines[1], "nested debug")
	assert.Contains(t, lines[1], `"logger":"node.detection"`)
	assert.Contains(t, lines[2], "root info")
}
