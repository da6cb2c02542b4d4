// Package config provides configuration management for review-gate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
)

// Defaults for tunables persisted in settings.json.
const (
	DefaultAckTimeout      = 30 * time.Second
	DefaultResponseTimeout = 300 * time.Second
	DefaultQuickTimeout    = 90 * time.Second
	DefaultIngestTimeout   = 120 * time.Second
	DefaultShutdownTimeout = 60 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultSessionExpiry   = 5 * time.Minute
	DefaultStaleTimeout    = 30 * time.Second
	DefaultSessionMaxAge   = time.Hour
	DefaultReaperInterval  = time.Minute
	DefaultSpeechPollEvery = 500 * time.Millisecond
	DefaultSpeechWorkers   = 2
	DefaultListLimit       = 50
)

// Config holds runtime configuration loaded from settings.json.
type Config struct {
	// ShareDir is the shared directory used for the rendezvous documents.
	ShareDir string `json:"share_dir"`
	// DBPath is the SQLite database location.
	DBPath string `json:"db_path"`

	AckTimeoutSeconds      int `json:"ack_timeout_seconds"`
	ResponseTimeoutSeconds int `json:"response_timeout_seconds"`
	PollIntervalMillis     int `json:"poll_interval_ms"`
	StaleTimeoutSeconds    int `json:"stale_timeout_seconds"`
	SessionMaxAgeMinutes   int `json:"session_max_age_minutes"`
	SpeechWorkers          int `json:"speech_workers"`
	StatusPort             int `json:"status_port"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ShareDir:               ShareDir(),
		DBPath:                 DBPath(),
		AckTimeoutSeconds:      int(DefaultAckTimeout / time.Second),
		ResponseTimeoutSeconds: int(DefaultResponseTimeout / time.Second),
		PollIntervalMillis:     int(DefaultPollInterval / time.Millisecond),
		StaleTimeoutSeconds:    int(DefaultStaleTimeout / time.Second),
		SessionMaxAgeMinutes:   int(DefaultSessionMaxAge / time.Minute),
		SpeechWorkers:          DefaultSpeechWorkers,
	}
}

// AckTimeout returns the acknowledgment wait bound.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}

// ResponseTimeout returns the default response wait bound.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutSeconds) * time.Second
}

// PollInterval returns the rendezvous poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// StaleTimeout returns the session liveness window.
func (c *Config) StaleTimeout() time.Duration {
	return time.Duration(c.StaleTimeoutSeconds) * time.Second
}

// SessionMaxAge returns the hard-delete age window.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeMinutes) * time.Minute
}

// DataDir returns the review-gate data directory (~/.review-gate).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".review-gate")
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "review_gate.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// ShareDir returns the shared rendezvous directory. The extension watches
// /tmp on unix; Windows falls back to the system temp directory.
func ShareDir() string {
	if dir := os.Getenv("REVIEW_GATE_SHARE_DIR"); dir != "" {
		return dir
	}
	if _, err := os.Stat("/tmp"); err == nil {
		return "/tmp"
	}
	return os.TempDir()
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureAll creates the data directory and a default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}

// Load reads settings.json, filling any zero fields from defaults.
func Load() (*Config, error) {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if cfg.ShareDir == "" {
		cfg.ShareDir = ShareDir()
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DBPath()
	}
	if cfg.PollIntervalMillis <= 0 {
		cfg.PollIntervalMillis = int(DefaultPollInterval / time.Millisecond)
	}
	if cfg.SpeechWorkers <= 0 {
		cfg.SpeechWorkers = DefaultSpeechWorkers
	}
	return cfg, nil
}
