package scriptrate

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings of the client, populated from the
// environment with an optional .env file underneath.
type Config struct {
	// BackendURL is the analysis backend base URL. When the backend is
	// unreachable at startup the client falls back to a local demo server.
	BackendURL string

	// DataDir is where session state, logs, and exports are kept.
	DataDir string

	// GeminiAPIKey enables the AI rewrite feature when set.
	GeminiAPIKey string

	// GeminiModel is the model used for rewrites.
	GeminiModel string

	// StreamTimeout bounds a whole analysis run.
	StreamTimeout time.Duration

	// WatchdogInterval is the silence threshold after which a stream is
	// considered stalled.
	WatchdogInterval time.Duration

	// PollInterval paces the polling fallback.
	PollInterval time.Duration

	// PollMaxAttempts and PollMaxErrors bound the polling fallback.
	PollMaxAttempts int
	PollMaxErrors   int
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over file values.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BackendURL:       envDefault("SCRIPTRATE_BACKEND_URL", "http://localhost:8000"),
		DataDir:          envDefault("SCRIPTRATE_DATA_DIR", defaultDataDir()),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envDefault("SCRIPTRATE_GEMINI_MODEL", "gemini-2.0-flash"),
		StreamTimeout:    envDuration("SCRIPTRATE_STREAM_TIMEOUT", 30*time.Minute),
		WatchdogInterval: envDuration("SCRIPTRATE_WATCHDOG_INTERVAL", 20*time.Minute),
		PollInterval:     envDuration("SCRIPTRATE_POLL_INTERVAL", 5*time.Second),
		PollMaxAttempts:  envInt("SCRIPTRATE_POLL_MAX_ATTEMPTS", 360),
		PollMaxErrors:    envInt("SCRIPTRATE_POLL_MAX_ERRORS", 5),
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogPath returns the log file location under the data directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "scriptrate.log")
}

// SessionDBPath returns the session database location.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scriptrate"
	}
	return filepath.Join(home, ".scriptrate")
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
