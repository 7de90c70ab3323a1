package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from a temp dir so no config.yaml is picked up.
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(orig) }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 24, cfg.Dedup.WindowHours)
	assert.InDelta(t, 0.80, cfg.Dedup.TitleThreshold, 0.001)
	assert.InDelta(t, 0.80, cfg.Dedup.ContentThreshold, 0.001)
	assert.Equal(t, 3, cfg.Correlate.ClusterThreshold)
	assert.Equal(t, 4, cfg.Actors.EnrichIntervalHours)
	assert.Equal(t, 60, cfg.Extract.ModelTimeoutSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(orig) }) //nolint:errcheck

	t.Setenv("INTELPIPE_CORRELATE_CLUSTER_THRESHOLD", "5")
	t.Setenv("INTELPIPE_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Correlate.ClusterThreshold)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	d := DedupConfig{WindowHours: 24}
	assert.Equal(t, "24h0m0s", d.Window().String())

	a := ActorsConfig{EnrichIntervalHours: 4}
	assert.Equal(t, "4h0m0s", a.EnrichInterval().String())
}
