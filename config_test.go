package scriptrate_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vportnov/scriptrate"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("SCRIPTRATE_DATA_DIR", t.TempDir())
		t.Setenv("SCRIPTRATE_BACKEND_URL", "")

		cfg, err := scriptrate.LoadConfig()

		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
		assert.Equal(t, 30*time.Minute, cfg.StreamTimeout)
		assert.Equal(t, 20*time.Minute, cfg.WatchdogInterval)
		assert.Equal(t, 5*time.Second, cfg.PollInterval)
		assert.Equal(t, 360, cfg.PollMaxAttempts)
		assert.Equal(t, 5, cfg.PollMaxErrors)
	})

	t.Run("environment overrides", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("SCRIPTRATE_DATA_DIR", dir)
		t.Setenv("SCRIPTRATE_BACKEND_URL", "http://rating.internal:9000")
		t.Setenv("SCRIPTRATE_POLL_INTERVAL", "2s")
		t.Setenv("SCRIPTRATE_POLL_MAX_ERRORS", "9")

		cfg, err := scriptrate.LoadConfig()

		require.NoError(t, err)
		assert.Equal(t, "http://rating.internal:9000", cfg.BackendURL)
		assert.Equal(t, 2*time.Second, cfg.PollInterval)
		assert.Equal(t, 9, cfg.PollMaxErrors)
	})

	t.Run("invalid durations fall back to defaults", func(t *testing.T) {
		t.Setenv("SCRIPTRATE_DATA_DIR", t.TempDir())
		t.Setenv("SCRIPTRATE_STREAM_TIMEOUT", "not-a-duration")

		cfg, err := scriptrate.LoadConfig()

		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, cfg.StreamTimeout)
	})

	t.Run("paths live under the data dir", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("SCRIPTRATE_DATA_DIR", dir)

		cfg, err := scriptrate.LoadConfig()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "scriptrate.log"), cfg.LogPath())
		assert.Equal(t, filepath.Join(dir, "sessions.db"), cfg.SessionDBPath())
	})
}
