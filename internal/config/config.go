// Package config holds daemon configuration and the persisted settings
// record of last-used download options.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds daemon configuration.
type Config struct {
	Port         int
	QueuePath    string
	HistoryPath  string
	SettingsPath string
	MaxRetries   int
	YTDLPPath    string
}

// DefaultStateDir returns the state directory using XDG_CACHE_HOME.
func DefaultStateDir() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "ytqueue")
}

// DefaultDownloadDir returns the default download directory.
func DefaultDownloadDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Downloads")
}

// Load parses flags and environment to build Config.
func Load() *Config {
	cfg := &Config{}
	stateDir := DefaultStateDir()

	flag.IntVar(&cfg.Port, "port", 8090, "HTTP server port")
	flag.StringVar(&cfg.QueuePath, "queue", filepath.Join(stateDir, "queue.json"), "Queue snapshot path")
	flag.StringVar(&cfg.HistoryPath, "db", filepath.Join(stateDir, "history.db"), "Outcome history database path")
	flag.StringVar(&cfg.SettingsPath, "settings", filepath.Join(stateDir, "settings.toml"), "Settings file path")
	flag.IntVar(&cfg.MaxRetries, "max-retries", 3, "Maximum retry attempts per job")
	flag.StringVar(&cfg.YTDLPPath, "ytdlp", "yt-dlp", "yt-dlp binary path")
	flag.Parse()

	// Env overrides
	if port := os.Getenv("YTQUEUE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if queue := os.Getenv("YTQUEUE_QUEUE"); queue != "" {
		cfg.QueuePath = queue
	}
	if db := os.Getenv("YTQUEUE_DB"); db != "" {
		cfg.HistoryPath = db
	}
	if settings := os.Getenv("YTQUEUE_SETTINGS"); settings != "" {
		cfg.SettingsPath = settings
	}

	return cfg
}
