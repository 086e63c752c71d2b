package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"NOTESYNC_API_URL",
		"NOTESYNC_API_TOKEN",
		"NOTESYNC_USER_ID",
		"NOTESYNC_ENABLE_SYNC",
		"NOTESYNC_SYNC_INTERVAL",
		"NOTESYNC_DATA_PATH",
		"ENVIRONMENT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// setSyncEnv sets the minimum env vars for sync mode.
func setSyncEnv(t *testing.T) {
	t.Helper()
	t.Setenv("NOTESYNC_API_URL", "https://notes.example.com")
	t.Setenv("NOTESYNC_API_TOKEN", "tok_abc123")
	t.Setenv("NOTESYNC_USER_ID", "user-1")
}

// --- Load: sync mode ---

func TestLoad_SyncMode(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.EnableSync)
	assert.Equal(t, "https://notes.example.com", cfg.APIBaseURL)
	assert.Equal(t, "tok_abc123", cfg.APIToken)
	assert.Equal(t, "user-1", cfg.UserID)
	assert.Equal(t, 60*time.Second, cfg.SyncInterval)
}

func TestLoad_SyncMode_MissingURL(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	os.Unsetenv("NOTESYNC_API_URL")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTESYNC_API_URL")
}

func TestLoad_SyncMode_RelativeURLRejected(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	t.Setenv("NOTESYNC_API_URL", "notes.example.com/api")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute URL")
}

func TestLoad_SyncMode_MissingToken(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	os.Unsetenv("NOTESYNC_API_TOKEN")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTESYNC_API_TOKEN")
}

func TestLoad_SyncMode_MissingUserID(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	os.Unsetenv("NOTESYNC_USER_ID")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTESYNC_USER_ID")
}

// --- Load: local-only mode ---

func TestLoad_SyncDisabledNeedsNoCredentials(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("NOTESYNC_ENABLE_SYNC", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.EnableSync)
	assert.Empty(t, cfg.APIBaseURL)
}

// --- interval and paths ---

func TestLoad_CustomInterval(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	t.Setenv("NOTESYNC_SYNC_INTERVAL", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
}

func TestLoad_SubSecondIntervalRejected(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	t.Setenv("NOTESYNC_SYNC_INTERVAL", "100ms")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTESYNC_SYNC_INTERVAL")
}

func TestLoad_DataPathMadeAbsolute(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	t.Setenv("NOTESYNC_DATA_PATH", "notes.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataPath))
}

// --- environment ---

func TestIsProduction(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestIsProductionDefaultsFalse(t *testing.T) {
	clearConfigEnv(t)
	setSyncEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsProduction())
}
