package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.EqualValues(t, 300, cfg.General.ThresholdMs)
	assert.True(t, cfg.General.Enabled)
	assert.EqualValues(t, 5000, cfg.Popup.TimeoutMs)
	assert.EqualValues(t, 24, cfg.Popup.FontSize)
	assert.Equal(t, "it", cfg.Locale.Active)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFileFillsRemainingDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[locale]\nactive = \"fr\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fr", cfg.Locale.Active)
	assert.EqualValues(t, 300, cfg.General.ThresholdMs)
}

func TestSnapshotIsConsistentCopy(t *testing.T) {
	cfg := Default()
	cfg.SetLocale("es")
	cfg.SetEnabled(false)

	snap := cfg.Snapshot()
	assert.Equal(t, "es", snap.ActiveLocale)
	assert.False(t, snap.Enabled)
}

func TestToggleFlipsEnabled(t *testing.T) {
	cfg := Default()
	require.True(t, cfg.General.Enabled)

	got := cfg.Toggle()
	assert.False(t, got)
	assert.False(t, cfg.General.Enabled)
}
