package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToStandardProfile(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "standard", cfg.ResourceProfile)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout)
	assert.Equal(t, 1.2, cfg.SafetyCoefficient)
}

func TestLoadEmbeddedProfileHasSmallerTimeouts(t *testing.T) {
	cfg, err := Load("", "embedded")
	require.NoError(t, err)
	assert.Equal(t, "embedded", cfg.ResourceProfile)
	assert.Equal(t, 2*time.Second, cfg.BusyTimeout)
	assert.Equal(t, 256, cfg.SummaryMaxTokens)
}

func TestLoadConfigFileOverridesProfileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memogarden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summary_max_tokens: 999\n"), 0o644))

	cfg, err := Load(path, "standard")
	require.NoError(t, err)
	assert.Equal(t, 999, cfg.SummaryMaxTokens)
	// untouched keys still come from the profile
	assert.Equal(t, 70, cfg.EvictionTargetFreePct)
}

func TestLoadEnvOverridesConfigFileAndProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memogarden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summary_max_tokens: 999\n"), 0o644))

	t.Setenv("MEMOGARDEN_SUMMARY_MAX_TOKENS", "42")

	cfg, err := Load(path, "standard")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.SummaryMaxTokens, "env var must win over both file and profile defaults")
}

func TestResolveStorePathPrecedence(t *testing.T) {
	assert.Equal(t, "/explicit/soil.db", ResolveStorePath("soil", "/explicit/soil.db", "/data"))
	assert.Equal(t, "/data/soil.db", ResolveStorePath("soil", "", "/data"))
	assert.Equal(t, "./core.db", ResolveStorePath("core", "", ""))
}
